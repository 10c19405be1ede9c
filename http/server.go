package http

import (
	"context"
	"errors"
	"net/http"

	echoHTTP "github.com/ThreeDotsLabs/go-event-driven/common/http"
	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"ticketing/claim"
	"ticketing/constraints"
	"ticketing/entity"
)

type Claimer interface {
	Claim(ctx context.Context, actor entity.Actor, req claim.Request) (claim.Result, error)
}

type PurchaseOrders interface {
	GetPurchaseOrder(ctx context.Context, actor entity.Actor, id string) (entity.PurchaseOrder, []string, error)
	GeneratePaymentLink(ctx context.Context, actor entity.Actor, purchaseOrderID, currencyID string) (entity.PurchaseOrder, error)
}

type ConstraintsEditor interface {
	ReplaceConstraints(ctx context.Context, actor entity.Actor, addonID string, inputs []constraints.Input) ([]entity.AddonConstraint, error)
}

type UserTickets interface {
	RequestTransfer(ctx context.Context, actor entity.Actor, userTicketID string, info claim.TransferInfo) (entity.UserTicketTransfer, error)
	CancelAddons(ctx context.Context, actor entity.Actor, userTicketID string, userTicketAddonIDs []string) ([]entity.UserTicketAddon, error)
}

type UsersRepository interface {
	GetUser(ctx context.Context, id string) (entity.User, error)
}

type CommandBus interface {
	Send(ctx context.Context, cmd any) error
}

type Server struct {
	addr           string
	e              *echo.Echo
	commandBus     CommandBus
	claimer        Claimer
	purchaseOrders PurchaseOrders
	constraints    ConstraintsEditor
	userTickets    UserTickets
	users          UsersRepository
}

func NewServer(
	addr string,
	commandBus CommandBus,
	claimer Claimer,
	purchaseOrders PurchaseOrders,
	constraintsEditor ConstraintsEditor,
	userTickets UserTickets,
	users UsersRepository,
) *Server {
	if commandBus == nil {
		panic("missing commandBus")
	}
	if claimer == nil {
		panic("missing claimer")
	}
	if purchaseOrders == nil {
		panic("missing purchaseOrders")
	}
	if constraintsEditor == nil {
		panic("missing constraintsEditor")
	}
	if userTickets == nil {
		panic("missing userTickets")
	}
	if users == nil {
		panic("missing users")
	}

	e := echoHTTP.NewEcho()
	e.Use(otelecho.Middleware("ticketing"))

	server := &Server{
		addr:           addr,
		e:              e,
		commandBus:     commandBus,
		claimer:        claimer,
		purchaseOrders: purchaseOrders,
		constraints:    constraintsEditor,
		userTickets:    userTickets,
		users:          users,
	}

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("", server.authenticate)

	api.POST("/purchase-orders/claim", server.PostClaim)
	api.POST("/purchase-orders/sync", server.PostSyncPurchaseOrders)
	api.GET("/purchase-orders/:id", server.GetPurchaseOrder)
	api.POST("/purchase-orders/:id/payment-link", server.PostPaymentLink)

	api.PUT("/addons/:id/constraints", server.PutAddonConstraints)

	api.POST("/user-tickets/:id/transfer", server.PostTransfer)
	api.POST("/user-tickets/:id/addons/cancel", server.PostCancelAddons)

	return server
}

func (s Server) Handler() http.Handler {
	return s.e
}

func (s Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		err := s.e.Shutdown(context.Background())
		if err != nil {
			log.FromContext(ctx).WithError(err).Error("failed to shutdown HTTP server")
		}
	}()
	log.FromContext(ctx).WithField("addr", s.addr).Info("[HTTP] server listening")
	if err := s.e.Start(s.addr); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
