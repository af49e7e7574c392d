// Package pubsub publishes order lifecycle events to Google Cloud Pub/Sub.
// Nothing in this service subscribes.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/shopflow-backend/pkg/config"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("pubsub orders topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

type Client struct {
	ps          *pubsub.Client
	projectID   string
	ordersTopic string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient creates a Pub/Sub v2 client and verifies the orders topic exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	topic := strings.TrimSpace(cfg.OrdersTopic)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	if topic == "" {
		return nil, errTopicRequired
	}

	ps, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{ps: ps, projectID: projectID, ordersTopic: topic}
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", c.TopicResourceName(topic)), "pubsub.client_ready")
	}
	return c, nil
}

// Publisher returns the shared, ordering-enabled publisher for a topic id or
// resource name. Events carry the order id as ordering key so subscribers see
// one order's transitions in sequence.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.ps == nil {
		return nil
	}
	fullName := c.TopicResourceName(name)
	if fullName == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[fullName]; ok {
		return p
	}
	p := c.ps.Publisher(fullName)
	p.EnableMessageOrdering = true
	if c.publishers == nil {
		c.publishers = make(map[string]*pubsub.Publisher)
	}
	c.publishers[fullName] = p
	return p
}

// OrdersPublisher returns the publisher for order lifecycle events.
func (c *Client) OrdersPublisher() *pubsub.Publisher {
	return c.Publisher(c.OrdersTopic())
}

// OrdersTopic is the configured orders topic id.
func (c *Client) OrdersTopic() string {
	if c == nil {
		return ""
	}
	return c.ordersTopic
}

// Ping verifies the orders topic is reachable and exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return errNotInitialized
	}
	_, err := c.ps.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.TopicResourceName(c.ordersTopic)})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("topic %q does not exist", c.ordersTopic)
	default:
		return fmt.Errorf("checking topic %q: %w", c.ordersTopic, err)
	}
}

// Close flushes every publisher handed out before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	c.mu.Lock()
	for _, p := range c.publishers {
		p.Stop()
	}
	c.publishers = nil
	c.mu.Unlock()
	return c.ps.Close()
}

// TopicResourceName expands a topic id into projects/<p>/topics/<id>.
func (c *Client) TopicResourceName(name string) string {
	name = strings.TrimSpace(name)
	if c == nil || name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/") {
		return name
	}
	if c.projectID == "" {
		return ""
	}
	return "projects/" + c.projectID + "/topics/" + name
}
