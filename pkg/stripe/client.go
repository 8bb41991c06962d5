package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	appName           = "storefront-backend"
	maxNetworkRetries = 2
)

// Mode is the Stripe account mode a deployment runs against.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

// keyPrefixes returns the secret and restricted key prefixes the mode accepts.
func (m Mode) keyPrefixes() []string {
	switch m {
	case ModeTest:
		return []string{"sk_test_", "rk_test_"}
	case ModeLive:
		return []string{"sk_live_", "rk_live_"}
	}
	return nil
}

func (m Mode) acceptsKey(key string) bool {
	for _, prefix := range m.keyPrefixes() {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// Client holds the account credentials for one Stripe mode. The checkout and
// refund resources used by Gateway go through the backend configured here.
type Client struct {
	mode          Mode
	signingSecret string
}

// NewClient checks the credentials against the configured mode, so a test key
// is never deployed next to a live webhook secret or the reverse, and points
// the Stripe backend at the service logger.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode := Mode(cfg.Environment())
	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	if err := checkCredentials(mode, apiKey, secret); err != nil {
		return nil, err
	}

	stripe.Key = apiKey
	stripe.SetAppInfo(&stripe.AppInfo{Name: appName})
	backendCfg := &stripe.BackendConfig{MaxNetworkRetries: stripe.Int64(maxNetworkRetries)}
	if logg != nil {
		backendCfg.LeveledLogger = &backendLogger{logg: logg, ctx: context.WithoutCancel(ctx)}
	}
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg))

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", string(mode)), "stripe client initialized")
	}
	return &Client{mode: mode, signingSecret: secret}, nil
}

func checkCredentials(mode Mode, apiKey, secret string) error {
	if mode.keyPrefixes() == nil {
		return fmt.Errorf("stripe environment must be %q or %q, got %q", ModeTest, ModeLive, mode)
	}
	var errs error
	switch {
	case apiKey == "":
		errs = multierr.Append(errs, errors.New("stripe api key is required"))
	case !mode.acceptsKey(apiKey):
		errs = multierr.Append(errs, fmt.Errorf("stripe environment %q requires a key starting with %s", mode, strings.Join(mode.keyPrefixes(), " or ")))
	}
	if secret == "" {
		errs = multierr.Append(errs, errors.New("stripe webhook secret is required"))
	}
	return errs
}

// Environment reports "test" or "live".
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return string(c.mode)
}

// LiveMode reports whether webhook events must carry livemode=true.
func (c *Client) LiveMode() bool {
	return c != nil && c.mode == ModeLive
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// backendLogger routes stripe-go's request logging into zerolog. Debug and
// Info are request traces and stay at Debug.
type backendLogger struct {
	logg *logger.Logger
	ctx  context.Context
}

func (b *backendLogger) Debugf(format string, v ...any) {
	b.logg.Debug(b.ctx, "stripe: "+fmt.Sprintf(format, v...))
}

func (b *backendLogger) Infof(format string, v ...any) {
	b.logg.Debug(b.ctx, "stripe: "+fmt.Sprintf(format, v...))
}

func (b *backendLogger) Warnf(format string, v ...any) {
	b.logg.Warn(b.ctx, "stripe: "+fmt.Sprintf(format, v...))
}

func (b *backendLogger) Errorf(format string, v ...any) {
	b.logg.Error(b.ctx, "stripe request failed", fmt.Errorf(format, v...))
}
