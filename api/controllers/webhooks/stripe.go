package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	signatureHeader = "Stripe-Signature"
	maxPayloadBytes = 1 << 16
)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type signingSource interface {
	SigningSecret() string
	LiveMode() bool
}

type receiver struct {
	svc    StripeWebhookService
	source signingSource
	guard  deliveryGuard
	logg   *logger.Logger
}

// StripeWebhook verifies and applies checkout session events. A delivery is
// claimed before it is applied, so redeliveries of a processed event are
// acknowledged without side effects. A failed delivery releases its claim and
// answers 5xx, which makes Stripe retry it.
func StripeWebhook(svc StripeWebhookService, source signingSource, guard deliveryGuard, logg *logger.Logger) http.HandlerFunc {
	rc := &receiver{svc: svc, source: source, guard: guard, logg: logg}
	return rc.serve
}

func (rc *receiver) serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := rc.ready(); err != nil {
		responses.WriteError(ctx, rc.logg, w, err)
		return
	}

	event, err := rc.verify(w, r)
	if err != nil {
		responses.WriteError(ctx, rc.logg, w, err)
		return
	}
	if rc.logg != nil {
		ctx = rc.logg.WithFields(ctx, map[string]any{"event_id": event.ID, "event_type": string(event.Type)})
	}

	duplicate, err := rc.apply(ctx, &event)
	if err != nil {
		responses.WriteError(ctx, rc.logg, w, err)
		return
	}
	ack := map[string]any{"received": true}
	if duplicate {
		ack["duplicate"] = true
	} else if rc.logg != nil {
		rc.logg.Info(ctx, "stripe event processed")
	}
	responses.WriteSuccess(w, ack)
}

func (rc *receiver) ready() error {
	switch {
	case rc.svc == nil:
		return pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable")
	case rc.source == nil:
		return pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable")
	case rc.guard == nil:
		return pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable")
	}
	return nil
}

// verify authenticates the payload and rejects events from the other Stripe
// mode, e.g. a test-mode endpoint registered against a live account.
func (rc *receiver) verify(w http.ResponseWriter, r *http.Request) (stripe.Event, error) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	signature := r.Header.Get(signatureHeader)
	if signature == "" {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, rc.source.SigningSecret(), webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature")
	}
	if event.Livemode != rc.source.LiveMode() {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe event livemode does not match this deployment")
	}
	return event, nil
}

// apply reports true when the event was already claimed by an earlier delivery.
func (rc *receiver) apply(ctx context.Context, event *stripe.Event) (bool, error) {
	seen, err := rc.guard.CheckAndMark(ctx, event.ID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	if seen {
		return true, nil
	}

	handleErr := rc.svc.HandleEvent(ctx, event)
	if handleErr == nil {
		return false, nil
	}
	if releaseErr := rc.guard.Delete(ctx, event.ID); releaseErr != nil && rc.logg != nil {
		rc.logg.Error(ctx, "release webhook claim", releaseErr)
	}
	if pkgerrors.As(handleErr) == nil {
		handleErr = pkgerrors.Wrap(pkgerrors.CodeInternal, handleErr, "apply stripe event")
	}
	return false, handleErr
}
