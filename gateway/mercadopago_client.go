package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ticketing/entity"
)

const defaultMercadoPagoURL = "https://api.mercadopago.com"

// MercadoPagoClient sells through checkout preferences. MercadoPago has no product
// catalogue, so products are kept in memory and inlined into each preference.
type MercadoPagoClient struct {
	baseURL     string
	accessToken string
	linkTTL     time.Duration
	client      *http.Client
	now         func() time.Time

	productsLock sync.RWMutex
	products     map[string]entity.PaymentProduct
}

func NewMercadoPagoClient(baseURL, accessToken string, linkTTL time.Duration) *MercadoPagoClient {
	if baseURL == "" {
		baseURL = defaultMercadoPagoURL
	}
	if accessToken == "" {
		panic("missing mercadopago access token")
	}

	return &MercadoPagoClient{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		accessToken: accessToken,
		linkTTL:     linkTTL,
		client:      newHTTPClient(10 * time.Second),
		now:         time.Now,
		products:    map[string]entity.PaymentProduct{},
	}
}

func (c *MercadoPagoClient) Platform() entity.PaymentPlatform {
	return entity.PaymentPlatformMercadoPago
}

func (c *MercadoPagoClient) EnsureProductExists(_ context.Context, product entity.PaymentProduct) (string, error) {
	ref := fmt.Sprintf("%s:%s:%d", product.ItemID, product.CurrencyCode, product.UnitAmountCents)

	c.productsLock.Lock()
	defer c.productsLock.Unlock()

	c.products[ref] = product

	return ref, nil
}

type mercadoPagoItem struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Quantity   int         `json:"quantity"`
	UnitPrice  json.Number `json:"unit_price"`
	CurrencyID string      `json:"currency_id"`
}

type mercadoPagoBackURLs struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
	Pending string `json:"pending,omitempty"`
}

type mercadoPagoPreferenceRequest struct {
	Items             []mercadoPagoItem   `json:"items"`
	ExternalReference string              `json:"external_reference"`
	BackURLs          mercadoPagoBackURLs `json:"back_urls"`
	AutoReturn        string              `json:"auto_return,omitempty"`
	Expires           bool                `json:"expires"`
	ExpirationDateTo  *time.Time          `json:"expiration_date_to,omitempty"`
}

type mercadoPagoPreference struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

func (c *MercadoPagoClient) CreatePaymentLink(
	ctx context.Context,
	items []entity.PaymentLinkItem,
	purchaseOrderID string,
	redirectURLs entity.RedirectURLs,
) (entity.PaymentLink, error) {
	body := mercadoPagoPreferenceRequest{
		ExternalReference: purchaseOrderID,
		BackURLs: mercadoPagoBackURLs{
			Success: redirectURLs.Success,
			Failure: redirectURLs.Failure,
			Pending: redirectURLs.Pending,
		},
	}
	if redirectURLs.Success != "" {
		body.AutoReturn = "approved"
	}

	var expiresAt time.Time
	if c.linkTTL > 0 {
		expiresAt = c.now().Add(c.linkTTL).UTC()
		body.Expires = true
		body.ExpirationDateTo = &expiresAt
	}

	total := decimal.Zero

	c.productsLock.RLock()
	for _, item := range items {
		product, ok := c.products[item.ProductRef]
		if !ok {
			c.productsLock.RUnlock()
			return entity.PaymentLink{}, fmt.Errorf("unknown mercadopago product %s", item.ProductRef)
		}

		unitPrice := entity.CentsToAmount(product.UnitAmountCents)
		total = total.Add(unitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))

		body.Items = append(body.Items, mercadoPagoItem{
			ID:         product.ItemID,
			Title:      product.Name,
			Quantity:   item.Quantity,
			UnitPrice:  json.Number(unitPrice.String()),
			CurrencyID: product.CurrencyCode,
		})
	}
	c.productsLock.RUnlock()

	payload, err := json.Marshal(body)
	if err != nil {
		return entity.PaymentLink{}, fmt.Errorf("could not marshal mercadopago preference: %w", err)
	}

	req, err := c.newRequest(http.MethodPost, "/checkout/preferences", payload)
	if err != nil {
		return entity.PaymentLink{}, err
	}
	req.Header.Set("X-Idempotency-Key", "preference-"+purchaseOrderID)

	var preference mercadoPagoPreference
	if _, err := do(ctx, c.client, req, &preference); err != nil {
		return entity.PaymentLink{}, err
	}

	return entity.PaymentLink{
		ReferenceID: preference.ID,
		URL:         preference.InitPoint,
		Status:      "pending",
		ExpiresAt:   expiresAt,
		TotalAmount: total,
	}, nil
}

type mercadoPagoMerchantOrders struct {
	Elements []struct {
		ID          int64  `json:"id"`
		Status      string `json:"status"`
		OrderStatus string `json:"order_status"`
	} `json:"elements"`
}

// GetPaymentStatus looks up the merchant orders created for a preference.
// A preference nobody has started paying yet has no merchant order.
func (c *MercadoPagoClient) GetPaymentStatus(ctx context.Context, referenceID string) (entity.ProviderPaymentStatus, error) {
	req, err := c.newRequest(
		http.MethodGet,
		"/merchant_orders/search?preference_id="+url.QueryEscape(referenceID),
		nil,
	)
	if err != nil {
		return entity.ProviderPaymentStatus{}, err
	}

	var orders mercadoPagoMerchantOrders
	if _, err := do(ctx, c.client, req, &orders); err != nil {
		return entity.ProviderPaymentStatus{}, err
	}

	status := entity.ProviderPaymentStatus{OrderStatus: "pending"}
	for i, order := range orders.Elements {
		if i == 0 {
			status.OrderStatus = order.OrderStatus
		}
		if order.OrderStatus == "paid" {
			status.Paid = true
			status.OrderStatus = order.OrderStatus
		}
	}

	return status, nil
}

func (c *MercadoPagoClient) newRequest(method, path string, payload []byte) (*http.Request, error) {
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("could not create mercadopago request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}
