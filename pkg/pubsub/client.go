// Package pubsub wraps the Pub/Sub v2 client used by the outbox publisher and
// the notification worker.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var (
	ErrNotInitialized    = errors.New("pubsub client not initialized")
	errProjectIDRequired = errors.New("gcp project id is required")
)

// Names qualifies short topic and subscription ids with a project. Ids that
// are already full resource names pass through untouched.
type Names struct {
	Project string
}

func (n Names) Topic(id string) string {
	return n.qualify("topics", id)
}

func (n Names) Subscription(id string) string {
	return n.qualify("subscriptions", id)
}

func (n Names) qualify(collection, id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, "projects/") && strings.Contains(id, "/"+collection+"/") {
		return id
	}
	project := strings.TrimSpace(n.Project)
	if project == "" {
		return ""
	}
	return "projects/" + project + "/" + collection + "/" + id
}

// Client hands out publishers and subscribers for the storefront's topics.
// Publishers are cached per topic and stopped on Close so buffered messages
// are flushed once.
type Client struct {
	client *pubsub.Client
	names  Names
	cfg    config.PubSubConfig

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient dials Pub/Sub and fails when the configured notification topic or
// subscription is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	raw, err := pubsub.NewClient(ctx, gcp.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:     raw,
		names:      Names{Project: gcp.ProjectID},
		cfg:        cfg,
		publishers: map[string]*pubsub.Publisher{},
	}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project_id":   gcp.ProjectID,
			"topic":        cfg.NotificationTopic,
			"subscription": cfg.NotificationSubscription,
		}), "pubsub client initialized")
	}
	return c, nil
}

type resourceCheck struct {
	kind string
	name string
	get  func(context.Context, string) error
}

func (c *Client) checks() []resourceCheck {
	return []resourceCheck{
		{kind: "topic", name: c.names.Topic(c.cfg.NotificationTopic), get: c.getTopic},
		{kind: "subscription", name: c.names.Subscription(c.cfg.NotificationSubscription), get: c.getSubscription},
	}
}

func (c *Client) getTopic(ctx context.Context, name string) error {
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	return err
}

func (c *Client) getSubscription(ctx context.Context, name string) error {
	_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
	return err
}

// Ping looks up every configured resource and reports all that are missing or
// unreachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return ErrNotInitialized
	}
	return verify(ctx, c.checks())
}

func verify(ctx context.Context, checks []resourceCheck) error {
	var errs error
	for _, check := range checks {
		if check.name == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s not configured", check.kind))
			continue
		}
		err := check.get(ctx, check.name)
		switch {
		case err == nil:
		case status.Code(err) == codes.NotFound:
			errs = multierr.Append(errs, fmt.Errorf("%s %s does not exist", check.kind, check.name))
		default:
			errs = multierr.Append(errs, fmt.Errorf("get %s %s: %w", check.kind, check.name, err))
		}
	}
	return errs
}

// Publisher returns the shared publisher for a topic id or resource name.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	name := c.names.Topic(topic)
	if name == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[name]; ok {
		return p
	}
	p := c.client.Publisher(name)
	c.publishers[name] = p
	return p
}

// NotificationSubscription is the subscriber the notification worker pulls from.
func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	name := c.names.Subscription(c.cfg.NotificationSubscription)
	if name == "" {
		return nil
	}
	return c.client.Subscriber(name)
}

// Close flushes cached publishers before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, p := range c.publishers {
		p.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}
