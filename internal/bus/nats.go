// Package bus implements domain.MessageBus over NATS, the pub/sub
// transport the mesh uses to distribute tasks and collect results.
// Grounded on
// libs/go/core/natsctx/natsctx.go: trace-context propagation over NATS
// message headers, carried through so a task's execution span survives
// the hop between nodes.
package bus

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ailee-network/ailee-core/internal/domain"
)

var propagator = propagation.TraceContext{}

const directSubjectPrefix = "ailee.node."

// directSubject is the per-node subject a node listens on for
// messages addressed to it specifically, as opposed to a shared topic.
func directSubject(nodeID domain.NodeID) string {
	return directSubjectPrefix + string(nodeID)
}

// Config configures the NATS connection.
type Config struct {
	URL           string
	ConnName      string
	MaxReconnects int
}

// DefaultConfig returns sane defaults for a local or single-region NATS
// deployment.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		ConnName:      "ailee-node",
		MaxReconnects: -1, // retry forever
	}
}

// Bus implements domain.MessageBus over a single NATS connection.
type Bus struct {
	conn *nats.Conn
}

// Connect dials NATS and returns a ready Bus.
func Connect(cfg Config) (*Bus, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.ConnName),
		nats.MaxReconnects(cfg.MaxReconnects),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{conn: conn}, nil
}

// Publish injects the current trace context into the message headers
// and publishes payload to topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	return b.conn.PublishMsg(&nats.Msg{Subject: topic, Data: payload, Header: hdr})
}

// Subscribe registers handler for every message published to topic,
// extracting and continuing the sender's trace context for each
// delivery. The returned unsubscribe function stops delivery and
// releases the subscription.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler func(payload []byte)) (func(), error) {
	sub, err := b.conn.Subscribe(topic, func(m *nats.Msg) {
		msgCtx := propagator.Extract(context.Background(), propagation.HeaderCarrier(m.Header))
		tracer := otel.Tracer("ailee-bus")
		_, span := tracer.Start(msgCtx, "bus.consume", trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()
		handler(m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %q: %w", topic, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// SendDirect publishes payload to nodeID's private subject, used for
// task assignment delivery and proof submission rather than broadcast.
func (b *Bus) SendDirect(ctx context.Context, nodeID domain.NodeID, payload []byte) error {
	return b.Publish(ctx, directSubject(nodeID), payload)
}

// SubscribeDirect listens on this node's own private subject.
func (b *Bus) SubscribeDirect(ctx context.Context, nodeID domain.NodeID, handler func(payload []byte)) (func(), error) {
	return b.Subscribe(ctx, directSubject(nodeID), handler)
}

// Close drains and closes the NATS connection.
func (b *Bus) Close() error {
	return b.conn.Drain()
}

var _ domain.MessageBus = (*Bus)(nil)
