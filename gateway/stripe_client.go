package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ticketing/entity"
)

const defaultStripeURL = "https://api.stripe.com"

type StripeClient struct {
	baseURL   string
	secretKey string
	linkTTL   time.Duration
	client    *http.Client
	now       func() time.Time
}

func NewStripeClient(baseURL, secretKey string, linkTTL time.Duration) *StripeClient {
	if baseURL == "" {
		baseURL = defaultStripeURL
	}
	if secretKey == "" {
		panic("missing stripe secret key")
	}

	return &StripeClient{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		secretKey: secretKey,
		linkTTL:   linkTTL,
		client:    newHTTPClient(10 * time.Second),
		now:       time.Now,
	}
}

func (c *StripeClient) Platform() entity.PaymentPlatform {
	return entity.PaymentPlatformStripe
}

type stripeProduct struct {
	ID           string `json:"id"`
	DefaultPrice string `json:"default_price"`
}

// stripeProductID is stable for an item at a given price, so a price change creates a new product.
func stripeProductID(product entity.PaymentProduct) string {
	return fmt.Sprintf(
		"%s_%s_%d",
		strings.ReplaceAll(product.ItemID, "-", ""),
		strings.ToLower(product.CurrencyCode),
		product.UnitAmountCents,
	)
}

// EnsureProductExists returns the id of the default price of the product, creating the
// product when Stripe does not know it yet.
func (c *StripeClient) EnsureProductExists(ctx context.Context, product entity.PaymentProduct) (string, error) {
	id := stripeProductID(product)

	req, err := c.newRequest(http.MethodGet, "/v1/products/"+id, nil)
	if err != nil {
		return "", err
	}

	var existing stripeProduct
	status, err := do(ctx, c.client, req, &existing)
	switch {
	case err == nil:
		return existing.DefaultPrice, nil
	case status != http.StatusNotFound:
		return "", err
	}

	form := url.Values{}
	form.Set("id", id)
	form.Set("name", product.Name)
	form.Set("default_price_data[currency]", strings.ToLower(product.CurrencyCode))
	form.Set("default_price_data[unit_amount]", strconv.FormatInt(product.UnitAmountCents, 10))
	form.Set("metadata[item_id]", product.ItemID)

	req, err = c.newRequest(http.MethodPost, "/v1/products", form)
	if err != nil {
		return "", err
	}

	var created stripeProduct
	if _, err := do(ctx, c.client, req, &created); err != nil {
		return "", err
	}

	return created.DefaultPrice, nil
}

type stripeCheckoutSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	ExpiresAt     int64  `json:"expires_at"`
	AmountTotal   int64  `json:"amount_total"`
}

func (c *StripeClient) CreatePaymentLink(
	ctx context.Context,
	items []entity.PaymentLinkItem,
	purchaseOrderID string,
	redirectURLs entity.RedirectURLs,
) (entity.PaymentLink, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", purchaseOrderID)
	form.Set("metadata[purchase_order_id]", purchaseOrderID)
	form.Set("success_url", redirectURLs.Success)
	form.Set("cancel_url", redirectURLs.Failure)
	if c.linkTTL > 0 {
		form.Set("expires_at", strconv.FormatInt(c.now().Add(c.linkTTL).Unix(), 10))
	}
	for i, item := range items {
		form.Set(fmt.Sprintf("line_items[%d][price]", i), item.ProductRef)
		form.Set(fmt.Sprintf("line_items[%d][quantity]", i), strconv.Itoa(item.Quantity))
	}

	req, err := c.newRequest(http.MethodPost, "/v1/checkout/sessions", form)
	if err != nil {
		return entity.PaymentLink{}, err
	}
	req.Header.Set("Idempotency-Key", "checkout-"+purchaseOrderID)

	var session stripeCheckoutSession
	if _, err := do(ctx, c.client, req, &session); err != nil {
		return entity.PaymentLink{}, err
	}

	link := entity.PaymentLink{
		ReferenceID: session.ID,
		URL:         session.URL,
		Status:      session.Status,
		TotalAmount: entity.CentsToAmount(session.AmountTotal),
	}
	if session.ExpiresAt > 0 {
		link.ExpiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}

	return link, nil
}

func (c *StripeClient) GetPaymentStatus(ctx context.Context, referenceID string) (entity.ProviderPaymentStatus, error) {
	req, err := c.newRequest(http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(referenceID), nil)
	if err != nil {
		return entity.ProviderPaymentStatus{}, err
	}

	var session stripeCheckoutSession
	if _, err := do(ctx, c.client, req, &session); err != nil {
		return entity.ProviderPaymentStatus{}, err
	}

	return entity.ProviderPaymentStatus{
		Paid:        session.PaymentStatus == "paid",
		OrderStatus: session.Status,
	}, nil
}

func (c *StripeClient) newRequest(method, path string, form url.Values) (*http.Request, error) {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("could not create stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	return req, nil
}
