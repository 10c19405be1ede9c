package constraints

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"ticketing/entity"
)

type TxManager interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Repository interface {
	GetAddons(ctx context.Context, ids []string) ([]entity.Addon, error)
	LockAddons(ctx context.Context, ids []string) error
	FindCommonAddons(ctx context.Context, ticketTemplateIDs []string) ([]entity.Addon, error)
	GetConstraintsAmong(ctx context.Context, addonIDs []string) ([]entity.AddonConstraint, error)
	ReplaceAddonConstraints(ctx context.Context, addonID string, constraints []entity.AddonConstraint) error
}

// Editor replaces the constraints declared by one add-on.
type Editor struct {
	txManager TxManager
	repo      Repository
}

func NewEditor(txManager TxManager, repo Repository) *Editor {
	if txManager == nil {
		panic("missing txManager")
	}
	if repo == nil {
		panic("missing repo")
	}

	return &Editor{txManager: txManager, repo: repo}
}

func (e *Editor) ReplaceConstraints(
	ctx context.Context,
	actor entity.Actor,
	addonID string,
	inputs []Input,
) ([]entity.AddonConstraint, error) {
	if !actor.IsSuperAdmin() {
		return nil, entity.Unauthorized("only super admins can edit addon constraints")
	}
	if _, err := uuid.Parse(addonID); err != nil {
		return nil, entity.InvalidArgument("invalid addon id %q", addonID)
	}

	var saved []entity.AddonConstraint

	err := e.txManager.InTx(ctx, func(ctx context.Context) error {
		// serializes concurrent edits of the same add-on
		if err := e.repo.LockAddons(ctx, []string{addonID}); err != nil {
			return fmt.Errorf("could not lock addon: %w", err)
		}

		addons, err := e.repo.GetAddons(ctx, []string{addonID})
		if err != nil {
			return fmt.Errorf("could not get addon: %w", err)
		}
		if len(addons) == 0 {
			return entity.NotFound("addon %s not found", addonID)
		}
		addon := addons[0]

		common, err := e.repo.FindCommonAddons(ctx, addon.TicketTemplateIDs())
		if err != nil {
			return fmt.Errorf("could not find common addons: %w", err)
		}
		commonIDs := lo.Without(lo.Map(common, func(a entity.Addon, _ int) string { return a.ID }), addonID)

		existing, err := e.repo.GetConstraintsAmong(ctx, append([]string{addonID}, commonIDs...))
		if err != nil {
			return fmt.Errorf("could not get existing constraints: %w", err)
		}

		err = Validate(Request{
			AddonID:        addonID,
			Constraints:    inputs,
			CommonAddonIDs: commonIDs,
			Existing:       existing,
		})
		if err != nil {
			return err
		}

		saved = lo.Map(inputs, func(in Input, _ int) entity.AddonConstraint {
			return entity.AddonConstraint{
				ID:             uuid.NewString(),
				AddonID:        addonID,
				RelatedAddonID: in.RelatedAddonID,
				ConstraintType: in.ConstraintType,
			}
		})

		return e.repo.ReplaceAddonConstraints(ctx, addonID, saved)
	})
	if err != nil {
		return nil, err
	}

	log.FromContext(ctx).WithField("addon_id", addonID).Infof("Replaced %d addon constraints", len(saved))

	return saved, nil
}
