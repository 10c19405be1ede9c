package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"ticketing/claim"
)

type transferResponse struct {
	ID              string    `json:"id"`
	UserTicketID    string    `json:"userTicketId"`
	RecipientUserID string    `json:"recipientUserId"`
	Status          string    `json:"status"`
	ExpirationDate  time.Time `json:"expirationDate"`
}

type cancelAddonsRequest struct {
	UserTicketAddonIDs []string `json:"userTicketAddonIds"`
}

type userTicketAddonResponse struct {
	ID             string `json:"id"`
	AddonID        string `json:"addonId"`
	ApprovalStatus string `json:"approvalStatus"`
}

func (s Server) PostTransfer(c echo.Context) error {
	var request transferInfoRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	transfer, err := s.userTickets.RequestTransfer(
		c.Request().Context(),
		actorFrom(c),
		c.Param("id"),
		claim.TransferInfo{
			Email:   request.Email,
			Name:    request.Name,
			Message: request.Message,
		},
	)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(http.StatusCreated, transferResponse{
		ID:              transfer.ID,
		UserTicketID:    transfer.UserTicketID,
		RecipientUserID: transfer.RecipientUserID,
		Status:          string(transfer.Status),
		ExpirationDate:  transfer.ExpirationDate,
	})
}

func (s Server) PostCancelAddons(c echo.Context) error {
	var request cancelAddonsRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	cancelled, err := s.userTickets.CancelAddons(c.Request().Context(), actorFrom(c), c.Param("id"), request.UserTicketAddonIDs)
	if err != nil {
		return handleError(c, err)
	}

	resp := make([]userTicketAddonResponse, 0, len(cancelled))
	for _, a := range cancelled {
		resp = append(resp, userTicketAddonResponse{
			ID:             a.ID,
			AddonID:        a.AddonID,
			ApprovalStatus: string(a.ApprovalStatus),
		})
	}

	return c.JSON(http.StatusOK, resp)
}
