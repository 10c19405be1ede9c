package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"ticketing/claim"
	"ticketing/entity"
)

type claimRequest struct {
	PurchaseOrder       []claimItemRequest          `json:"purchaseOrder"`
	GeneratePaymentLink *generatePaymentLinkRequest `json:"generatePaymentLink"`
}

type claimItemRequest struct {
	TicketID     string               `json:"ticketId"`
	Quantity     int                  `json:"quantity"`
	ItemsDetails []itemDetailsRequest `json:"itemsDetails"`
}

type itemDetailsRequest struct {
	TransferInfo *transferInfoRequest `json:"transferInfo"`
	Addons       []addonRequest       `json:"addons"`
}

type transferInfoRequest struct {
	Email   string  `json:"email"`
	Name    string  `json:"name"`
	Message *string `json:"message"`
}

type addonRequest struct {
	AddonID  string `json:"addonId"`
	Quantity int    `json:"quantity"`
}

type generatePaymentLinkRequest struct {
	CurrencyID string `json:"currencyId"`
}

type purchaseOrderResponse struct {
	ID                         string   `json:"id"`
	Status                     string   `json:"status"`
	PurchaseOrderPaymentStatus string   `json:"purchaseOrderPaymentStatus"`
	PaymentPlatform            *string  `json:"paymentPlatform,omitempty"`
	PaymentPlatformPaymentLink *string  `json:"paymentPlatformPaymentLink,omitempty"`
	TotalPrice                 *string  `json:"totalPrice,omitempty"`
	TicketsIDs                 []string `json:"ticketsIds"`
}

type claimErrorResponse struct {
	Error        bool   `json:"error"`
	ErrorMessage string `json:"errorMessage"`
}

func (r claimRequest) toDomain() claim.Request {
	req := claim.Request{
		Items: lo.Map(r.PurchaseOrder, func(item claimItemRequest, _ int) claim.Item {
			return claim.Item{
				TicketID: item.TicketID,
				Quantity: item.Quantity,
				ItemsDetails: lo.Map(item.ItemsDetails, func(d itemDetailsRequest, _ int) claim.ItemDetails {
					details := claim.ItemDetails{
						Addons: lo.Map(d.Addons, func(a addonRequest, _ int) claim.AddonRequest {
							return claim.AddonRequest{AddonID: a.AddonID, Quantity: a.Quantity}
						}),
					}
					if d.TransferInfo != nil {
						details.TransferInfo = &claim.TransferInfo{
							Email:   d.TransferInfo.Email,
							Name:    d.TransferInfo.Name,
							Message: d.TransferInfo.Message,
						}
					}
					return details
				}),
			}
		}),
	}

	if r.GeneratePaymentLink != nil {
		req.CurrencyID = &r.GeneratePaymentLink.CurrencyID
	}

	return req
}

func newPurchaseOrderResponse(po entity.PurchaseOrder, ticketIDs []string) purchaseOrderResponse {
	resp := purchaseOrderResponse{
		ID:                         po.ID,
		Status:                     string(po.Status),
		PurchaseOrderPaymentStatus: string(po.PaymentStatus),
		PaymentPlatformPaymentLink: po.PaymentLink,
		TicketsIDs:                 ticketIDs,
	}
	if resp.TicketsIDs == nil {
		resp.TicketsIDs = []string{}
	}
	if po.PaymentPlatform != nil {
		resp.PaymentPlatform = lo.ToPtr(string(*po.PaymentPlatform))
	}
	if po.TotalPriceCents != nil {
		resp.TotalPrice = lo.ToPtr(entity.CentsToAmount(*po.TotalPriceCents).StringFixed(2))
	}

	return resp
}

// PostClaim answers expected claim failures with an error payload instead of
// an HTTP error, so clients can branch on the "error" field.
func (s Server) PostClaim(c echo.Context) error {
	var request claimRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	result, err := s.claimer.Claim(c.Request().Context(), actorFrom(c), request.toDomain())
	if err != nil {
		return handleError(c, err)
	}

	if result.Failed() {
		return c.JSON(statusFor(result.Error.Kind), claimErrorResponse{
			Error:        true,
			ErrorMessage: result.Error.ErrorMessage,
		})
	}

	return c.JSON(http.StatusCreated, newPurchaseOrderResponse(result.PurchaseOrder, result.TicketIDs))
}

func (s Server) GetPurchaseOrder(c echo.Context) error {
	po, ticketIDs, err := s.purchaseOrders.GetPurchaseOrder(c.Request().Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(http.StatusOK, newPurchaseOrderResponse(po, ticketIDs))
}

func (s Server) PostPaymentLink(c echo.Context) error {
	var request generatePaymentLinkRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	ctx := c.Request().Context()
	actor := actorFrom(c)

	if _, err := s.purchaseOrders.GeneratePaymentLink(ctx, actor, c.Param("id"), request.CurrencyID); err != nil {
		return handleError(c, err)
	}

	po, ticketIDs, err := s.purchaseOrders.GetPurchaseOrder(ctx, actor, c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(http.StatusOK, newPurchaseOrderResponse(po, ticketIDs))
}

// PostSyncPurchaseOrders schedules a reconciliation pass outside the regular interval.
func (s Server) PostSyncPurchaseOrders(c echo.Context) error {
	if !actorFrom(c).IsSuperAdmin() {
		return echo.NewHTTPError(http.StatusUnauthorized, "only super admins can sync purchase orders")
	}

	err := s.commandBus.Send(c.Request().Context(), &entity.SyncPurchaseOrders{
		Header: entity.NewEventHeader(),
	})
	if err != nil {
		return err
	}

	return c.NoContent(http.StatusAccepted)
}
