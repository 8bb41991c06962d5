package refunds

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

// Purpose labels why money is going back to the buyer.
type Purpose string

const (
	PurposeCancel       Purpose = "cancel"
	PurposeReturn       Purpose = "return"
	PurposeConfirmation Purpose = "confirmation_failed"
)

// Gateway is the refund side of the payment provider.
type Gateway interface {
	CreateRefund(ctx context.Context, req pkgstripe.RefundRequest) (*pkgstripe.RefundResult, error)
}

type refundRecorder interface {
	IncRefund(purpose, outcome string)
}

// Request is one refund against an order's captured payment.
type Request struct {
	Purpose          Purpose
	OrderID          uuid.UUID
	SubjectID        uuid.UUID
	PaymentReference string
	// AmountCents nil refunds the whole payment.
	AmountCents *int64
}

// IdempotencyKey is stable per purpose and subject so gateway retries never
// refund twice.
func (r Request) IdempotencyKey() string {
	subject := r.SubjectID
	if subject == uuid.Nil {
		subject = r.OrderID
	}
	return fmt.Sprintf("%s-%s", r.Purpose, subject)
}

// Service issues refunds and turns non-succeeded results into GATEWAY_ERROR.
type Service struct {
	gateway Gateway
	metrics refundRecorder
	logg    *logger.Logger
}

func NewService(gateway Gateway, metrics refundRecorder, logg *logger.Logger) (*Service, error) {
	if gateway == nil {
		return nil, fmt.Errorf("refund gateway required")
	}
	return &Service{gateway: gateway, metrics: metrics, logg: logg}, nil
}

// Refund calls the gateway and returns the result only when it succeeded.
func (s *Service) Refund(ctx context.Context, req Request) (*pkgstripe.RefundResult, error) {
	if strings.TrimSpace(req.PaymentReference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no captured payment to refund")
	}
	if req.AmountCents != nil && *req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	result, err := s.gateway.CreateRefund(ctx, pkgstripe.RefundRequest{
		PaymentReference: req.PaymentReference,
		AmountCents:      req.AmountCents,
		IdempotencyKey:   req.IdempotencyKey(),
		Metadata: map[string]string{
			"orderId": req.OrderID.String(),
			"purpose": string(req.Purpose),
		},
	})
	if err != nil {
		s.record(req.Purpose, "error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, MessageFor(ReasonUnknown))
	}
	if !result.Succeeded() {
		s.record(req.Purpose, "rejected")
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"order_id":       req.OrderID.String(),
				"refund_status":  result.Status,
				"failure_reason": result.FailureReason,
				"purpose":        string(req.Purpose),
			})
			s.logg.Warn(logCtx, "refund not succeeded")
		}
		return nil, pkgerrors.New(pkgerrors.CodeGateway, MessageFor(result.FailureReason)).
			WithDetails(map[string]any{"reason": result.FailureReason, "status": result.Status})
	}

	s.record(req.Purpose, "succeeded")
	return result, nil
}

func (s *Service) record(purpose Purpose, outcome string) {
	if s.metrics != nil {
		s.metrics.IncRefund(string(purpose), outcome)
	}
}
