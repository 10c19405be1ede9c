package payment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"ticketing/clock"
	"ticketing/entity"
	"ticketing/metrics"
)

type TxManager interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type PurchaseOrdersRepository interface {
	GetPurchaseOrder(ctx context.Context, id string) (entity.PurchaseOrder, error)
	GetPurchaseOrderForUpdate(ctx context.Context, id string) (entity.PurchaseOrder, error)
	UpdatePurchaseOrder(ctx context.Context, po entity.PurchaseOrder) error
	ListUnpaidPurchaseOrders(ctx context.Context) ([]entity.PurchaseOrder, error)
}

type ItemsRepository interface {
	ListUserTicketsByPurchaseOrder(ctx context.Context, purchaseOrderID string) ([]entity.UserTicket, error)
	ListUserTicketAddonsByPurchaseOrder(ctx context.Context, purchaseOrderID string) ([]entity.UserTicketAddon, error)
	SetAddonUnitPrices(ctx context.Context, unitPrices map[string]int64) error
	ApprovePendingByPurchaseOrder(ctx context.Context, purchaseOrderID string) error
	CancelByPurchaseOrder(ctx context.Context, purchaseOrderID string, at time.Time) ([]string, error)
}

type Catalog interface {
	GetTicketTemplates(ctx context.Context, ids []string) ([]entity.TicketTemplate, error)
	GetAddons(ctx context.Context, ids []string) ([]entity.Addon, error)
	GetCurrency(ctx context.Context, id string) (entity.Currency, error)
}

type UsersRepository interface {
	GetUser(ctx context.Context, id string) (entity.User, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event entity.PublicEvent) error
}

// Provider is a payment platform able to sell products through payment links.
type Provider interface {
	Platform() entity.PaymentPlatform
	EnsureProductExists(ctx context.Context, product entity.PaymentProduct) (string, error)
	CreatePaymentLink(
		ctx context.Context,
		items []entity.PaymentLinkItem,
		purchaseOrderID string,
		redirectURLs entity.RedirectURLs,
	) (entity.PaymentLink, error)
	GetPaymentStatus(ctx context.Context, referenceID string) (entity.ProviderPaymentStatus, error)
}

// currencyPlatforms maps currency codes to the platform that charges them.
var currencyPlatforms = map[string]entity.PaymentPlatform{
	"USD": entity.PaymentPlatformStripe,
	"CLP": entity.PaymentPlatformMercadoPago,
}

type Config struct {
	RedirectURLs   entity.RedirectURLs
	PaymentLinkTTL time.Duration
}

type Orchestrator struct {
	txManager TxManager
	orders    PurchaseOrdersRepository
	items     ItemsRepository
	catalog   Catalog
	users     UsersRepository
	publisher EventPublisher
	providers map[entity.PaymentPlatform]Provider
	clock     clock.Clock
	config    Config
}

func NewOrchestrator(
	txManager TxManager,
	orders PurchaseOrdersRepository,
	items ItemsRepository,
	catalog Catalog,
	users UsersRepository,
	publisher EventPublisher,
	providers []Provider,
	clk clock.Clock,
	config Config,
) *Orchestrator {
	if txManager == nil {
		panic("missing txManager")
	}
	if orders == nil {
		panic("missing orders")
	}
	if items == nil {
		panic("missing items")
	}
	if catalog == nil {
		panic("missing catalog")
	}
	if users == nil {
		panic("missing users")
	}
	if publisher == nil {
		panic("missing publisher")
	}
	if clk == nil {
		panic("missing clock")
	}

	return &Orchestrator{
		txManager: txManager,
		orders:    orders,
		items:     items,
		catalog:   catalog,
		users:     users,
		publisher: publisher,
		providers: lo.KeyBy(providers, func(p Provider) entity.PaymentPlatform { return p.Platform() }),
		clock:     clk,
		config:    config,
	}
}

// lineItem is one priced row of a purchase order at the chosen currency.
type lineItem struct {
	product  entity.PaymentProduct
	quantity int
}

type pricedOrder struct {
	lineItems       []lineItem
	addonUnitPrices map[string]int64
	totalCents      int64
	hasPaidItems    bool
	missingPrice    error
}

// GetPurchaseOrder returns a purchase order with the ids of its tickets.
func (o *Orchestrator) GetPurchaseOrder(ctx context.Context, actor entity.Actor, id string) (entity.PurchaseOrder, []string, error) {
	if err := validateID("purchase order", id); err != nil {
		return entity.PurchaseOrder{}, nil, err
	}

	po, err := o.orders.GetPurchaseOrder(ctx, id)
	if err != nil {
		return entity.PurchaseOrder{}, nil, fmt.Errorf("could not get purchase order: %w", err)
	}
	if po.UserID != actor.User.ID && !actor.IsSuperAdmin() {
		return entity.PurchaseOrder{}, nil, entity.Unauthorized("purchase order %s does not belong to the caller", id)
	}

	tickets, err := o.items.ListUserTicketsByPurchaseOrder(ctx, id)
	if err != nil {
		return entity.PurchaseOrder{}, nil, fmt.Errorf("could not list purchase order tickets: %w", err)
	}

	return po, lo.Map(tickets, func(t entity.UserTicket, _ int) string { return t.ID }), nil
}

// GeneratePaymentLink prices an open purchase order in the given currency and creates
// a payment link for it, or completes it when nothing has to be paid.
// It joins the caller's transaction when there is one.
func (o *Orchestrator) GeneratePaymentLink(
	ctx context.Context,
	actor entity.Actor,
	purchaseOrderID string,
	currencyID string,
) (entity.PurchaseOrder, error) {
	if err := validateID("purchase order", purchaseOrderID); err != nil {
		return entity.PurchaseOrder{}, err
	}
	if err := validateID("currency", currencyID); err != nil {
		return entity.PurchaseOrder{}, err
	}

	var result entity.PurchaseOrder

	err := o.txManager.InTx(ctx, func(ctx context.Context) error {
		po, err := o.orders.GetPurchaseOrderForUpdate(ctx, purchaseOrderID)
		if err != nil {
			return fmt.Errorf("could not get purchase order: %w", err)
		}
		if po.UserID != actor.User.ID && !actor.IsSuperAdmin() {
			return entity.Unauthorized("purchase order %s does not belong to the caller", purchaseOrderID)
		}
		if err := o.ensurePayable(po); err != nil {
			return err
		}

		currency, err := o.catalog.GetCurrency(ctx, currencyID)
		if err != nil {
			return fmt.Errorf("could not get currency: %w", err)
		}

		priced, err := o.priceOrder(ctx, po, currency)
		if err != nil {
			return err
		}

		if err := o.items.SetAddonUnitPrices(ctx, priced.addonUnitPrices); err != nil {
			return fmt.Errorf("could not set addon prices: %w", err)
		}

		po.CurrencyID = &currency.ID
		po.TotalPriceCents = lo.ToPtr(priced.totalCents)

		if !priced.hasPaidItems {
			po.Status = entity.PurchaseOrderStatusComplete
			po.PaymentStatus = entity.PaymentStatusNotRequired
		} else {
			platform, ok := currencyPlatforms[currency.Code]
			if !ok {
				return entity.InvalidArgument("currency %s is not supported for payments", currency.Code)
			}
			if priced.missingPrice != nil {
				return priced.missingPrice
			}
			if priced.totalCents <= 0 {
				return entity.Internal("purchase order %s requires payment but its total is zero", po.ID)
			}

			po, err = o.createPaymentLink(ctx, po, platform, priced)
			if err != nil {
				return err
			}
		}

		if err := o.orders.UpdatePurchaseOrder(ctx, po); err != nil {
			return fmt.Errorf("could not update purchase order: %w", err)
		}

		result = po
		return nil
	})
	if err != nil {
		return entity.PurchaseOrder{}, err
	}

	return result, nil
}

func validateID(name, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return entity.InvalidArgument("invalid %s id %q", name, id)
	}
	return nil
}

func (o *Orchestrator) ensurePayable(po entity.PurchaseOrder) error {
	switch {
	case po.PaymentStatus == entity.PaymentStatusPaid:
		return entity.FailedPrecondition("purchase order %s is already paid", po.ID)
	case po.PaymentStatus == entity.PaymentStatusNotRequired:
		return entity.FailedPrecondition("purchase order %s does not require payment", po.ID)
	case po.Status != entity.PurchaseOrderStatusOpen:
		return entity.FailedPrecondition("purchase order %s is %s", po.ID, po.Status)
	case po.IsExpired(o.clock.Now()):
		return entity.FailedPrecondition("purchase order %s has expired", po.ID)
	}
	return nil
}

// priceOrder computes line items and add-on price snapshots at the given currency.
func (o *Orchestrator) priceOrder(ctx context.Context, po entity.PurchaseOrder, currency entity.Currency) (pricedOrder, error) {
	tickets, err := o.items.ListUserTicketsByPurchaseOrder(ctx, po.ID)
	if err != nil {
		return pricedOrder{}, fmt.Errorf("could not list purchase order tickets: %w", err)
	}
	tickets = lo.Filter(tickets, func(t entity.UserTicket, _ int) bool {
		return t.DeletedAt == nil && t.ApprovalStatus != entity.ApprovalStatusCancelled
	})

	ticketAddons, err := o.items.ListUserTicketAddonsByPurchaseOrder(ctx, po.ID)
	if err != nil {
		return pricedOrder{}, fmt.Errorf("could not list purchase order addons: %w", err)
	}
	ticketAddons = lo.Filter(ticketAddons, func(a entity.UserTicketAddon, _ int) bool {
		return a.ApprovalStatus != entity.AddonApprovalStatusCancelled
	})

	templateIDs := lo.Uniq(lo.Map(tickets, func(t entity.UserTicket, _ int) string { return t.TicketTemplateID }))
	templates, err := o.catalog.GetTicketTemplates(ctx, templateIDs)
	if err != nil {
		return pricedOrder{}, fmt.Errorf("could not get ticket templates: %w", err)
	}
	templatesByID := lo.KeyBy(templates, func(t entity.TicketTemplate) string { return t.ID })

	var addonsByID map[string]entity.Addon
	if len(ticketAddons) > 0 {
		addonIDs := lo.Uniq(lo.Map(ticketAddons, func(a entity.UserTicketAddon, _ int) string { return a.AddonID }))
		addons, err := o.catalog.GetAddons(ctx, addonIDs)
		if err != nil {
			return pricedOrder{}, fmt.Errorf("could not get addons: %w", err)
		}
		addonsByID = lo.KeyBy(addons, func(a entity.Addon) string { return a.ID })
	}

	priced := pricedOrder{addonUnitPrices: map[string]int64{}}
	quantities := map[string]int{}
	products := map[string]entity.PaymentProduct{}

	for _, t := range tickets {
		template, ok := templatesByID[t.TicketTemplateID]
		if !ok {
			return pricedOrder{}, entity.NotFound("ticket %s not found", t.TicketTemplateID)
		}
		if template.IsFree {
			continue
		}
		priced.hasPaidItems = true

		price, ok := entity.PriceFor(template.Prices, currency.ID)
		if !ok {
			if priced.missingPrice == nil {
				priced.missingPrice = entity.InvalidArgument("ticket %s has no price in %s", template.ID, currency.Code)
			}
			continue
		}

		key := "ticket:" + template.ID
		products[key] = entity.PaymentProduct{
			ItemID:          template.ID,
			Name:            template.Name,
			UnitAmountCents: price.AmountCents,
			CurrencyCode:    currency.Code,
		}
		quantities[key]++
		priced.totalCents += price.AmountCents
	}

	for _, a := range ticketAddons {
		addon, ok := addonsByID[a.AddonID]
		if !ok {
			return pricedOrder{}, entity.NotFound("addon %s not found", a.AddonID)
		}
		if addon.IsFree {
			priced.addonUnitPrices[a.ID] = 0
			continue
		}
		priced.hasPaidItems = true

		price, ok := entity.PriceFor(addon.Prices, currency.ID)
		if !ok {
			if priced.missingPrice == nil {
				priced.missingPrice = entity.InvalidArgument("addon %s has no price in %s", addon.ID, currency.Code)
			}
			continue
		}

		key := "addon:" + addon.ID
		products[key] = entity.PaymentProduct{
			ItemID:          addon.ID,
			Name:            addon.Name,
			UnitAmountCents: price.AmountCents,
			CurrencyCode:    currency.Code,
		}
		quantities[key] += a.Quantity
		priced.addonUnitPrices[a.ID] = price.AmountCents
		priced.totalCents += price.AmountCents * int64(a.Quantity)
	}

	keys := lo.Keys(products)
	sort.Strings(keys)
	for _, key := range keys {
		priced.lineItems = append(priced.lineItems, lineItem{product: products[key], quantity: quantities[key]})
	}

	return priced, nil
}

func (o *Orchestrator) createPaymentLink(
	ctx context.Context,
	po entity.PurchaseOrder,
	platform entity.PaymentPlatform,
	priced pricedOrder,
) (entity.PurchaseOrder, error) {
	provider, ok := o.providers[platform]
	if !ok {
		return entity.PurchaseOrder{}, entity.Internal("no payment provider configured for %s", platform)
	}

	refQuantities := map[string]int{}
	var refs []string
	for _, item := range priced.lineItems {
		ref, err := provider.EnsureProductExists(ctx, item.product)
		if err != nil {
			return entity.PurchaseOrder{}, fmt.Errorf("could not ensure %s product %s: %w", platform, item.product.ItemID, err)
		}
		if _, ok := refQuantities[ref]; !ok {
			refs = append(refs, ref)
		}
		refQuantities[ref] += item.quantity
	}

	linkItems := lo.Map(refs, func(ref string, _ int) entity.PaymentLinkItem {
		return entity.PaymentLinkItem{ProductRef: ref, Quantity: refQuantities[ref]}
	})

	link, err := provider.CreatePaymentLink(ctx, linkItems, po.ID, o.config.RedirectURLs)
	if err != nil {
		return entity.PurchaseOrder{}, fmt.Errorf("could not create %s payment link: %w", platform, err)
	}

	logger := log.FromContext(ctx).WithFields(logrus.Fields{
		"purchase_order_id": po.ID,
		"platform":          platform,
		"reference_id":      link.ReferenceID,
	})
	if !link.TotalAmount.IsZero() && !link.TotalAmount.Equal(entity.CentsToAmount(priced.totalCents)) {
		logger.WithField("provider_total", link.TotalAmount.String()).Warn("Payment link total differs from purchase order total")
	}
	logger.Info("Payment link created")
	metrics.PaymentLinksCreated.With(prometheus.Labels{"platform": string(platform)}).Inc()

	expiresAt := link.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = o.clock.Now().Add(o.config.PaymentLinkTTL)
	}

	po.PaymentPlatform = &platform
	po.ExternalReferenceID = &link.ReferenceID
	po.PaymentLink = &link.URL
	po.ExternalStatus = &link.Status
	po.ExpiresAt = &expiresAt

	return po, nil
}
