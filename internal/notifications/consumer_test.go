package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

type recordingMailer struct {
	err  error
	sent []Email
}

func (m *recordingMailer) Send(_ context.Context, email Email) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

type memoryGuard struct {
	marked  map[string]bool
	deleted []string
}

func (g *memoryGuard) CheckAndMark(_ context.Context, id string) (bool, error) {
	if g.marked == nil {
		g.marked = map[string]bool{}
	}
	if g.marked[id] {
		return true, nil
	}
	g.marked[id] = true
	return false, nil
}

func (g *memoryGuard) Delete(_ context.Context, id string) error {
	delete(g.marked, id)
	g.deleted = append(g.deleted, id)
	return nil
}

func newTestConsumer(t *testing.T, mailer Mailer, guard processedGuard) *Consumer {
	t.Helper()
	reg, err := registry.NewEventRegistry(config.PubSubConfig{NotificationTopic: "notifications"})
	require.NoError(t, err)
	consumer, err := NewConsumer(ConsumerParams{
		Registry:    reg,
		Idempotency: guard,
		Mailer:      mailer,
		From:        "orders@example.com",
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}}),
	})
	require.NoError(t, err)
	return consumer
}

func envelopeBytes(t *testing.T, eventID uuid.UUID, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	require.NoError(t, err)
	return body
}

func confirmedPayload() payloads.OrderNotification {
	return payloads.OrderNotification{
		OrderID:       uuid.New(),
		Recipient:     "buyer@example.com",
		RecipientName: "Ada Buyer",
		Status:        enums.OrderStatusConfirmed,
		TrackingID:    "Track12345",
		OrderDate:     time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Items:         []payloads.LineSummary{{Name: "Linen shirt", Quantity: 2, UnitPriceCents: 1250, LineTotalCents: 2500}},
		SubtotalCents: 2500,
		FeesCents:     100,
		TotalCents:    2600,
	}
}

func TestNewConsumerValidatesDependencies(t *testing.T) {
	_, err := NewConsumer(ConsumerParams{})
	require.Error(t, err)
}

func TestConsumerSendsOncePerEvent(t *testing.T) {
	mailer := &recordingMailer{}
	consumer := newTestConsumer(t, mailer, &memoryGuard{})
	eventID := uuid.New()
	data := envelopeBytes(t, eventID, confirmedPayload())

	res := consumer.process(context.Background(), "m1", string(enums.EventOrderConfirmed), data)
	assert.True(t, res.ack)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "buyer@example.com", mailer.sent[0].To)
	assert.Equal(t, "orders@example.com", mailer.sent[0].From)
	assert.Equal(t, "Your order has been confirmed", mailer.sent[0].Subject)
	assert.Contains(t, mailer.sent[0].Body, "Tracking ID: Track12345")
	assert.Contains(t, mailer.sent[0].Body, "Total: $26.00")

	res = consumer.process(context.Background(), "m2", string(enums.EventOrderConfirmed), data)
	assert.True(t, res.ack)
	assert.Len(t, mailer.sent, 1)
}

func TestConsumerNacksAndUnmarksOnDeliveryFailure(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("smtp down")}
	guard := &memoryGuard{}
	consumer := newTestConsumer(t, mailer, guard)
	eventID := uuid.New()

	res := consumer.process(context.Background(), "m1", string(enums.EventOrderConfirmed), envelopeBytes(t, eventID, confirmedPayload()))
	assert.True(t, res.nack)
	assert.Equal(t, []string{eventID.String()}, guard.deleted)
	assert.False(t, guard.marked[eventID.String()])
}

func TestConsumerAcksPoisonMessages(t *testing.T) {
	mailer := &recordingMailer{}
	consumer := newTestConsumer(t, mailer, &memoryGuard{})

	assert.True(t, consumer.process(context.Background(), "m1", "license_status_changed", []byte(`{}`)).ack)
	assert.True(t, consumer.process(context.Background(), "m2", string(enums.EventOrderConfirmed), []byte(`not json`)).ack)
	assert.True(t, consumer.process(context.Background(), "m3", string(enums.EventOrderConfirmed), []byte(`{"eventId":"nope","data":{}}`)).ack)
	assert.Empty(t, mailer.sent)
}
