// Package natsutil provides typed NATS publish/subscribe helpers with
// OpenTelemetry trace propagation and redelivery bookkeeping for the
// ingestion worker.
package natsutil

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// RetryHeader counts how many times a message has been requeued. Absent
// means zero.
const RetryHeader = "X-Retry-Count"

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// RetryCount reads the redelivery counter from a message.
func RetryCount(msg *nats.Msg) int {
	if msg.Header == nil {
		return 0
	}
	n, err := strconv.Atoi(msg.Header.Get(RetryHeader))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Publish serializes v as JSON and publishes to the given subject.
// Trace context from ctx is injected into NATS message headers.
func Publish[T any](ctx context.Context, nc *nats.Conn, subject string, v T) error {
	return PublishRetry(ctx, nc, subject, v, 0)
}

// PublishRetry publishes v with an explicit redelivery count. Workers use it
// to requeue a failed message with the counter bumped, and to route messages
// that exhausted their retries to a dead letter subject.
func PublishRetry[T any](ctx context.Context, nc *nats.Conn, subject string, v T, retries int) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
	}
	if retries > 0 {
		msg.Header = nats.Header{RetryHeader: []string{strconv.Itoa(retries)}}
	}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return nc.PublishMsg(msg)
}

// Subscribe registers a handler that deserializes JSON messages of type T.
// Handler contexts derive from ctx, so canceling it cancels in-flight
// handlers; trace context from NATS message headers is layered on top, and
// the message's redelivery count is passed through. Malformed messages are
// silently dropped.
func Subscribe[T any](ctx context.Context, nc *nats.Conn, subject string, handler func(ctx context.Context, v T, retries int)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, handlerFunc(ctx, handler))
}

func handlerFunc[T any](ctx context.Context, handler func(ctx context.Context, v T, retries int)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			return // drop malformed messages
		}
		msgCtx := otel.GetTextMapPropagator().Extract(ctx, (*natsHeaderCarrier)(msg))
		handler(msgCtx, v, RetryCount(msg))
	}
}
