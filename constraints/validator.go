package constraints

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"ticketing/entity"
)

type Input struct {
	RelatedAddonID string
	ConstraintType entity.ConstraintType
}

// Request describes a replacement of all constraints declared by AddonID.
//
// CommonAddonIDs are the add-ons associated with every ticket template AddonID is
// associated with. Only those may take part in AddonID's constraints, and only
// persisted edges between them are considered.
type Request struct {
	AddonID        string
	Constraints    []Input
	CommonAddonIDs []string
	Existing       []entity.AddonConstraint
}

// Validate checks a constraint replacement against the rest of the constraint graph.
// It does no I/O.
func Validate(req Request) error {
	if err := validateInputs(req); err != nil {
		return err
	}

	dependencies, exclusions := buildGraphs(req)

	if err := checkBidirectionalDependencies(dependencies); err != nil {
		return err
	}

	if cycle := dependencies.FindCycle(); cycle != nil {
		return entity.InvalidArgument("dependency cycle detected: %s", FormatPath(cycle))
	}

	return checkDependencyExclusionConsistency(dependencies, exclusions)
}

func validateInputs(req Request) error {
	type key struct {
		relatedAddonID string
		constraintType entity.ConstraintType
	}

	seen := map[key]struct{}{}
	for _, c := range req.Constraints {
		if _, err := entity.ParseConstraintType(string(c.ConstraintType)); err != nil {
			return err
		}
		if c.RelatedAddonID == req.AddonID {
			return entity.InvalidArgument("addon %s cannot have a constraint on itself", req.AddonID)
		}

		k := key{c.RelatedAddonID, c.ConstraintType}
		if _, ok := seen[k]; ok {
			return entity.InvalidArgument(
				"duplicate %s constraint on addon %s",
				c.ConstraintType,
				c.RelatedAddonID,
			)
		}
		seen[k] = struct{}{}
	}

	var outside []string
	for _, c := range req.Constraints {
		if !lo.Contains(req.CommonAddonIDs, c.RelatedAddonID) {
			outside = append(outside, c.RelatedAddonID)
		}
	}
	if len(outside) > 0 {
		outside = lo.Uniq(outside)
		sort.Strings(outside)
		return entity.InvalidArgument(
			"addons %s are not available for every ticket of addon %s",
			strings.Join(outside, ", "),
			req.AddonID,
		)
	}

	return nil
}

func buildGraphs(req Request) (dependencies *Graph, exclusions *Graph) {
	dependencies = NewGraph()
	exclusions = NewGraph()

	nodes := lo.Uniq(append([]string{req.AddonID}, req.CommonAddonIDs...))
	for _, id := range nodes {
		dependencies.AddNode(id)
		exclusions.AddNode(id)
	}

	for _, c := range req.Existing {
		if c.AddonID == req.AddonID {
			// replaced by the request
			continue
		}
		if !dependencies.HasNode(c.AddonID) || !dependencies.HasNode(c.RelatedAddonID) {
			continue
		}
		addEdge(dependencies, exclusions, c.AddonID, c.RelatedAddonID, c.ConstraintType)
	}

	for _, c := range req.Constraints {
		addEdge(dependencies, exclusions, req.AddonID, c.RelatedAddonID, c.ConstraintType)
	}

	return dependencies, exclusions
}

func addEdge(dependencies, exclusions *Graph, from, to string, constraintType entity.ConstraintType) {
	switch constraintType {
	case entity.ConstraintTypeDependency:
		dependencies.AddEdge(from, to)
	case entity.ConstraintTypeMutualExclusion:
		// exclusion is symmetric
		exclusions.AddEdge(from, to)
		exclusions.AddEdge(to, from)
	}
}

func checkBidirectionalDependencies(dependencies *Graph) error {
	for _, from := range dependencies.Nodes() {
		for _, to := range dependencies.Neighbors(from) {
			if from < to && dependencies.HasEdge(to, from) {
				return entity.InvalidArgument(
					"bidirectional dependency between addons %s and %s",
					from,
					to,
				)
			}
		}
	}
	return nil
}

// checkDependencyExclusionConsistency rejects add-ons that (transitively) depend on something
// they, or anything they depend on, are mutually exclusive with.
func checkDependencyExclusionConsistency(dependencies, exclusions *Graph) error {
	closure := dependencies.TransitiveClosure()

	for _, node := range dependencies.Nodes() {
		required := closure[node]

		excluded := map[string]struct{}{}
		for _, id := range exclusions.Neighbors(node) {
			excluded[id] = struct{}{}
		}
		for dep := range required {
			for _, id := range exclusions.Neighbors(dep) {
				excluded[id] = struct{}{}
			}
		}

		for _, dep := range sortedKeys(required) {
			if _, ok := excluded[dep]; ok {
				return entity.InvalidArgument(
					"addon %s depends on %s but is mutually exclusive with %s",
					node,
					dep,
					dep,
				)
			}
		}
	}

	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
