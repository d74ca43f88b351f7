// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package queue

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Disposition is the acknowledgment decision for a consumed message.
type Disposition int

const (
	// Ack marks the message as processed.
	Ack Disposition = iota
	// NackRequeue returns the message to the queue for a later retry
	// (transient failures, e.g. downstream publish errors).
	NackRequeue
	// NackDrop rejects the message without requeue (permanently malformed).
	NackDrop
)

// HandlerFunc processes one delivery body and returns how to settle it.
type HandlerFunc func(ctx context.Context, body []byte) Disposition

// Consumer consumes one queue with a prefetch window equal to the worker
// concurrency — the sole backpressure mechanism bounding in-flight
// unacknowledged messages. Each delivery is handled in its own goroutine so
// the consume loop only ever blocks on the next delivery or shutdown.
type Consumer struct {
	url      string
	queue    string
	tag      string
	prefetch int
}

// NewConsumer creates a consumer for the named durable queue.
func NewConsumer(url, queueName, consumerTag string, prefetch int) *Consumer {
	return &Consumer{
		url:      url,
		queue:    queueName,
		tag:      consumerTag,
		prefetch: prefetch,
	}
}

// Run connects, declares the queue, and consumes until ctx is cancelled or
// the broker closes the delivery stream. Handlers already dispatched keep
// running after cancellation; unacknowledged prefetch returns to the broker
// via its redelivery mechanism once the connection drops.
func (c *Consumer) Run(ctx context.Context, handle HandlerFunc) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}

	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queue, err)
	}

	deliveries, err := ch.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	slog.Info("consumer started",
		"queue", c.queue,
		"consumer_tag", c.tag,
		"prefetch", c.prefetch,
	)

	// Spawned handlers must outlive loop cancellation — shutdown is
	// cooperative and in-flight work runs to completion.
	taskCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("consumer stopping", "queue", c.queue)
			return nil

		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery stream for %s closed by broker", c.queue)
			}

			slog.Info("message received",
				"queue", c.queue,
				"message_id", d.MessageId,
				"delivery_tag", d.DeliveryTag,
				"body_length", len(d.Body),
			)

			go func(d amqp.Delivery) {
				settle(d, handle(taskCtx, d.Body))
			}(d)
		}
	}
}

// settle applies the handler's disposition to the delivery. Settlement errors
// mean the channel died; the broker will redeliver, so they are only logged.
func settle(d amqp.Delivery, disp Disposition) {
	var err error
	switch disp {
	case Ack:
		err = d.Ack(false)
	case NackRequeue:
		err = d.Nack(false, true)
	case NackDrop:
		err = d.Nack(false, false)
	}

	if err != nil {
		slog.Error("settle failed",
			"delivery_tag", d.DeliveryTag,
			"disposition", int(disp),
			"error", err,
		)
	}
}
