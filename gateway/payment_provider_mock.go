package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ticketing/entity"
)

type PaymentProviderMock struct {
	mock sync.Mutex

	PlatformName entity.PaymentPlatform

	Products map[string]entity.PaymentProduct
	Links    map[string][]entity.PaymentLinkItem
	// Statuses is keyed by reference id; references without an entry report "pending".
	Statuses map[string]entity.ProviderPaymentStatus

	LinkExpiresAt  time.Time
	CreateLinkErr  error
	GetStatusErr   error
	StatusRequests int
}

func NewPaymentProviderMock(platform entity.PaymentPlatform) *PaymentProviderMock {
	return &PaymentProviderMock{PlatformName: platform}
}

func (c *PaymentProviderMock) Platform() entity.PaymentPlatform {
	return c.PlatformName
}

func (c *PaymentProviderMock) EnsureProductExists(ctx context.Context, product entity.PaymentProduct) (string, error) {
	c.mock.Lock()
	defer c.mock.Unlock()

	if c.Products == nil {
		c.Products = make(map[string]entity.PaymentProduct)
	}

	ref := fmt.Sprintf("%s-%s-%s", c.PlatformName, product.ItemID, product.CurrencyCode)
	c.Products[ref] = product

	return ref, nil
}

func (c *PaymentProviderMock) CreatePaymentLink(
	ctx context.Context,
	items []entity.PaymentLinkItem,
	purchaseOrderID string,
	redirectURLs entity.RedirectURLs,
) (entity.PaymentLink, error) {
	c.mock.Lock()
	defer c.mock.Unlock()

	if c.CreateLinkErr != nil {
		return entity.PaymentLink{}, c.CreateLinkErr
	}
	if c.Links == nil {
		c.Links = make(map[string][]entity.PaymentLinkItem)
	}

	ref := fmt.Sprintf("%s-link-%s", c.PlatformName, purchaseOrderID)
	c.Links[purchaseOrderID] = items

	return entity.PaymentLink{
		ReferenceID: ref,
		URL:         "https://pay.example.com/" + ref,
		Status:      "pending",
		ExpiresAt:   c.LinkExpiresAt,
	}, nil
}

func (c *PaymentProviderMock) GetPaymentStatus(ctx context.Context, referenceID string) (entity.ProviderPaymentStatus, error) {
	c.mock.Lock()
	defer c.mock.Unlock()

	c.StatusRequests++

	if c.GetStatusErr != nil {
		return entity.ProviderPaymentStatus{}, c.GetStatusErr
	}

	status, ok := c.Statuses[referenceID]
	if !ok {
		return entity.ProviderPaymentStatus{OrderStatus: "pending"}, nil
	}

	return status, nil
}

func (c *PaymentProviderMock) SetStatus(referenceID string, status entity.ProviderPaymentStatus) {
	c.mock.Lock()
	defer c.mock.Unlock()

	if c.Statuses == nil {
		c.Statuses = make(map[string]entity.ProviderPaymentStatus)
	}
	c.Statuses[referenceID] = status
}

func (c *PaymentProviderMock) LinkItems(purchaseOrderID string) ([]entity.PaymentLinkItem, bool) {
	c.mock.Lock()
	defer c.mock.Unlock()

	items, ok := c.Links[purchaseOrderID]
	return items, ok
}

func (c *PaymentProviderMock) ProductCount() int {
	c.mock.Lock()
	defer c.mock.Unlock()

	return len(c.Products)
}
