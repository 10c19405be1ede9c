package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"ticketing/constraints"
	"ticketing/entity"
)

type addonConstraintsRequest struct {
	Constraints []addonConstraintRequest `json:"constraints"`
}

type addonConstraintRequest struct {
	RelatedAddonID string `json:"relatedAddonId"`
	ConstraintType string `json:"constraintType"`
}

type addonConstraintResponse struct {
	ID             string `json:"id"`
	AddonID        string `json:"addonId"`
	RelatedAddonID string `json:"relatedAddonId"`
	ConstraintType string `json:"constraintType"`
}

func (s Server) PutAddonConstraints(c echo.Context) error {
	var request addonConstraintsRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	inputs := make([]constraints.Input, 0, len(request.Constraints))
	for _, r := range request.Constraints {
		constraintType, err := entity.ParseConstraintType(r.ConstraintType)
		if err != nil {
			return handleError(c, err)
		}
		inputs = append(inputs, constraints.Input{
			RelatedAddonID: r.RelatedAddonID,
			ConstraintType: constraintType,
		})
	}

	saved, err := s.constraints.ReplaceConstraints(c.Request().Context(), actorFrom(c), c.Param("id"), inputs)
	if err != nil {
		return handleError(c, err)
	}

	resp := make([]addonConstraintResponse, 0, len(saved))
	for _, constraint := range saved {
		resp = append(resp, addonConstraintResponse{
			ID:             constraint.ID,
			AddonID:        constraint.AddonID,
			RelatedAddonID: constraint.RelatedAddonID,
			ConstraintType: string(constraint.ConstraintType),
		})
	}

	return c.JSON(http.StatusOK, resp)
}
