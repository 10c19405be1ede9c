package config

import (
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"

	"ticketing/entity"
)

type Config struct {
	HTTPAddr    string `long:"http-addr" env:"HTTP_ADDR" default:":8080" description:"HTTP listen address"`
	PostgresURL string `long:"postgres-url" env:"POSTGRES_URL" required:"true" description:"Postgres connection string"`
	RedisAddr   string `long:"redis-addr" env:"REDIS_ADDR" required:"true" description:"Redis address"`

	JaegerEndpoint string `long:"jaeger-endpoint" env:"JAEGER_ENDPOINT" description:"Jaeger collector endpoint"`
	GatewayAddr    string `long:"gateway-addr" env:"GATEWAY_ADDR" description:"API gateway address, used to reach Jaeger when no endpoint is set"`

	NotificationsURL string `long:"notifications-url" env:"NOTIFICATIONS_URL" required:"true" description:"Notification service base URL"`

	Stripe      StripeConfig      `group:"Stripe" namespace:"stripe" env-namespace:"STRIPE"`
	MercadoPago MercadoPagoConfig `group:"MercadoPago" namespace:"mercadopago" env-namespace:"MERCADOPAGO"`
	Redirects   RedirectsConfig   `group:"Redirects" namespace:"redirect" env-namespace:"REDIRECT"`

	PaymentLinkTTL    time.Duration `long:"payment-link-ttl" env:"PAYMENT_LINK_TTL" default:"30m" description:"How long a payment link stays valid"`
	TransferTTL       time.Duration `long:"transfer-ttl" env:"TRANSFER_TTL" default:"168h" description:"How long a ticket transfer can be accepted"`
	ReconcileInterval time.Duration `long:"reconcile-interval" env:"RECONCILE_INTERVAL" default:"1m" description:"How often unpaid purchase orders are synced"`
}

type StripeConfig struct {
	URL       string `long:"url" env:"URL" default:"https://api.stripe.com" description:"Stripe API base URL"`
	SecretKey string `long:"secret-key" env:"SECRET_KEY" required:"true" description:"Stripe secret key"`
}

type MercadoPagoConfig struct {
	URL         string `long:"url" env:"URL" default:"https://api.mercadopago.com" description:"MercadoPago API base URL"`
	AccessToken string `long:"access-token" env:"ACCESS_TOKEN" required:"true" description:"MercadoPago access token"`
}

type RedirectsConfig struct {
	Success string `long:"success" env:"SUCCESS_URL" required:"true" description:"Where buyers land after paying"`
	Failure string `long:"failure" env:"FAILURE_URL" required:"true" description:"Where buyers land after a failed payment"`
	Pending string `long:"pending" env:"PENDING_URL" description:"Where buyers land while a payment is pending"`
}

func (c RedirectsConfig) URLs() entity.RedirectURLs {
	pending := c.Pending
	if pending == "" {
		pending = c.Success
	}

	return entity.RedirectURLs{
		Success: c.Success,
		Failure: c.Failure,
		Pending: pending,
	}
}

// Load reads the configuration from command line arguments and environment variables.
func Load(args []string) (Config, error) {
	var cfg Config

	parser := flags.NewParser(&cfg, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		return Config{}, fmt.Errorf("could not parse config: %w", err)
	}

	if cfg.ReconcileInterval <= 0 {
		return Config{}, fmt.Errorf("reconcile interval must be positive, got %s", cfg.ReconcileInterval)
	}

	return cfg, nil
}
