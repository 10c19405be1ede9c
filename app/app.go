package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/components/forwarder"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"ticketing/claim"
	"ticketing/clock"
	"ticketing/constraints"
	dbLib "ticketing/db"
	"ticketing/entity"
	"ticketing/http"
	"ticketing/payment"
	"ticketing/pubsub"
	"ticketing/pubsub/bus"
	"ticketing/pubsub/command"
	"ticketing/pubsub/event"
	"ticketing/pubsub/outbox"
)

func init() {
	log.Init(logrus.InfoLevel)
}

type Config struct {
	HTTPAddr          string
	Payment           payment.Config
	TransferTTL       time.Duration
	ReconcileInterval time.Duration
}

type App struct {
	db                *sqlx.DB
	watermillRouter   *message.Router
	forwarder         *forwarder.Forwarder
	httpServer        *http.Server
	commandBus        *cqrs.CommandBus
	reconcileInterval time.Duration
	traceProvider     *tracesdk.TracerProvider
	watermillLogger   watermill.LoggerAdapter
}

func New(
	cfg Config,
	db *sqlx.DB,
	redisClient *redis.Client,
	notifier event.Notifier,
	providers []payment.Provider,
	traceProvider *tracesdk.TracerProvider,
) (App, error) {
	watermillLogger := log.NewWatermill(log.FromContext(context.Background()))

	var redisPublisher message.Publisher
	redisPublisher = pubsub.NewRedisPublisher(redisClient, watermillLogger)
	redisPublisher = log.CorrelationPublisherDecorator{Publisher: redisPublisher}

	commandBus, err := bus.NewCommandBus(redisPublisher)
	if err != nil {
		return App{}, fmt.Errorf("could not create command bus: %w", err)
	}

	clk := clock.NewSystem()
	txManager := dbLib.NewTxManager(db)
	catalog := dbLib.NewCatalogRepository(db)
	userTickets := dbLib.NewUserTicketsRepository(db)
	purchaseOrders := dbLib.NewPurchaseOrdersRepository(db)
	users := dbLib.NewUsersRepository(db)
	eventLog := dbLib.NewEventLog(db)
	outboxPublisher := dbLib.NewOutboxEventPublisher(watermillLogger)
	recipients := claim.NewRecipientResolver(users)

	paymentOrchestrator := payment.NewOrchestrator(
		txManager,
		purchaseOrders,
		userTickets,
		catalog,
		users,
		outboxPublisher,
		providers,
		clk,
		cfg.Payment,
	)

	claimOrchestrator := claim.NewOrchestrator(
		txManager,
		catalog,
		userTickets,
		purchaseOrders,
		recipients,
		outboxPublisher,
		paymentOrchestrator,
		clk,
		cfg.TransferTTL,
	)

	ticketService := claim.NewTicketService(
		txManager,
		catalog,
		userTickets,
		recipients,
		outboxPublisher,
		clk,
		cfg.TransferTTL,
	)

	constraintsEditor := constraints.NewEditor(txManager, catalog)

	watermillRouter, err := pubsub.NewWatermillRouter(
		redisClient,
		redisPublisher,
		event.NewProcessorConfig(redisClient, watermillLogger),
		event.NewHandler(notifier),
		command.NewProcessorConfig(redisClient, watermillLogger),
		command.NewHandler(paymentOrchestrator),
		eventLog,
		watermillLogger,
	)
	if err != nil {
		return App{}, fmt.Errorf("could not create watermill router: %w", err)
	}

	postgresSubscriber := outbox.NewPostgresSubscriber(db.DB, watermillLogger)
	fwd, err := outbox.NewForwarder(postgresSubscriber, redisPublisher, watermillLogger)
	if err != nil {
		return App{}, err
	}

	httpServer := http.NewServer(
		cfg.HTTPAddr,
		commandBus,
		claimOrchestrator,
		paymentOrchestrator,
		constraintsEditor,
		ticketService,
		users,
	)

	return App{
		db:                db,
		watermillRouter:   watermillRouter,
		forwarder:         fwd,
		httpServer:        httpServer,
		commandBus:        commandBus,
		reconcileInterval: cfg.ReconcileInterval,
		traceProvider:     traceProvider,
		watermillLogger:   watermillLogger,
	}, nil
}

func (a App) Run(ctx context.Context) error {
	if err := dbLib.InitializeDatabaseSchema(a.db); err != nil {
		return fmt.Errorf("could not initialize database schema: %w", err)
	}
	if err := outbox.InitializeSchema(a.db.DB, a.watermillLogger); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.traceProvider != nil {
		g.Go(func() error {
			<-ctx.Done()
			return a.traceProvider.Shutdown(context.Background())
		})
	}

	g.Go(func() error {
		return a.watermillRouter.Run(ctx)
	})

	g.Go(func() error {
		return a.forwarder.Run(ctx)
	})

	g.Go(func() error {
		<-a.watermillRouter.Running()
		return a.scheduleReconciliation(ctx)
	})

	g.Go(func() error {
		// the app is not healthy before the router is ready
		<-a.watermillRouter.Running()

		return a.httpServer.Run(ctx)
	})

	return g.Wait()
}

// scheduleReconciliation sends SyncPurchaseOrders on every tick. Each command is
// handled by one replica of the consumer group.
func (a App) scheduleReconciliation(ctx context.Context) error {
	ticker := time.NewTicker(a.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := a.commandBus.Send(ctx, &entity.SyncPurchaseOrders{
				Header: entity.NewEventHeader(),
			})
			if err != nil {
				log.FromContext(ctx).WithError(err).Error("Could not schedule purchase orders sync")
			}
		}
	}
}
