package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestNamesQualifyShortIDs(t *testing.T) {
	names := Names{Project: "shop-prod"}

	assert.Equal(t, "projects/shop-prod/topics/notifications", names.Topic("notifications"))
	assert.Equal(t, "projects/other/topics/x", names.Topic("projects/other/topics/x"))
	assert.Equal(t, "projects/shop-prod/subscriptions/worker", names.Subscription(" worker "))
	assert.Equal(t, "projects/other/subscriptions/y", names.Subscription("projects/other/subscriptions/y"))
	assert.Empty(t, names.Topic(""))

	// a subscription path is not a topic path
	assert.Equal(t, "projects/shop-prod/topics/projects/a/subscriptions/b", names.Topic("projects/a/subscriptions/b"))

	assert.Empty(t, Names{}.Subscription("worker"))
}

func TestVerifyCollectsEveryProblem(t *testing.T) {
	ctx := context.Background()
	missing := func(context.Context, string) error { return status.Error(codes.NotFound, "nope") }
	down := func(context.Context, string) error { return errors.New("connection refused") }
	present := func(context.Context, string) error { return nil }

	err := verify(ctx, []resourceCheck{
		{kind: "topic", name: "projects/p/topics/t", get: missing},
		{kind: "subscription", name: "", get: present},
		{kind: "subscription", name: "projects/p/subscriptions/s", get: down},
		{kind: "topic", name: "projects/p/topics/ok", get: present},
	})
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Len(t, errs, 3)
	assert.EqualError(t, errs[0], "topic projects/p/topics/t does not exist")
	assert.EqualError(t, errs[1], "subscription not configured")
	assert.Contains(t, errs[2].Error(), "connection refused")

	assert.NoError(t, verify(ctx, []resourceCheck{{kind: "topic", name: "projects/p/topics/ok", get: present}}))
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("topic"))
	assert.Nil(t, c.NotificationSubscription())
	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.Ping(context.Background()), ErrNotInitialized)
}
