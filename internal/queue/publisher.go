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

// Package queue provides the RabbitMQ transport for the engagement pipeline:
// a reconnecting confirm-mode publisher and a prefetch-bounded consumer with
// explicit acknowledgment discipline.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes JSON messages to durable queues. It lazily establishes
// its connection and channel on first use and re-establishes them whenever a
// disconnect is detected before a publish. Safe for concurrent use.
type Publisher struct {
	url    string
	queues []string

	mu   sync.RWMutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher creates a publisher for the given broker URL. The named queues
// are declared durable on every (re)connect; re-declaring an existing durable
// queue is a no-op on the broker.
func NewPublisher(url string, queues ...string) *Publisher {
	return &Publisher{url: url, queues: queues}
}

// channel returns a live channel, reconnecting if needed. The common
// already-connected case takes only a read lock; reconnection is serialised
// behind the write lock with a re-check so concurrent publishers during a
// reconnect window cannot race to open duplicate connections.
func (p *Publisher) channel() (*amqp.Channel, error) {
	p.mu.RLock()
	if p.ch != nil && !p.ch.IsClosed() {
		ch := p.ch
		p.mu.RUnlock()
		return ch, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another caller may have reconnected while we waited for the lock.
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	slog.Info("publisher connecting to broker")

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// Publisher confirms — Publish blocks until the broker acks the message.
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}

	for _, name := range p.queues {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declare queue %s: %w", name, err)
		}
	}

	slog.Info("publisher connected", "queues", p.queues)

	p.conn = conn
	p.ch = ch
	return ch, nil
}

// Publish serialises v to JSON and publishes it to the named queue with
// persistent delivery mode. It returns once the broker has confirmed receipt;
// any transport failure is retryable by the caller.
func (p *Publisher) Publish(ctx context.Context, queueName, messageID string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ch, err := p.channel()
	if err != nil {
		return err
	}

	conf, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queueName, false, false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    messageID,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queueName, err)
	}

	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm for %s: %w", queueName, err)
	}
	if !acked {
		return fmt.Errorf("broker rejected publish to %s", queueName)
	}

	slog.Info("message published",
		"queue", queueName,
		"message_id", messageID,
		"body_length", len(body),
	)

	return nil
}

// Close tears down the channel, then the connection. Idempotent; broker-side
// close errors are logged, never propagated.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			slog.Warn("channel close error", "error", err)
		}
		p.ch = nil
	}

	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			slog.Warn("connection close error", "error", err)
		}
		p.conn = nil
	}

	slog.Info("publisher closed")
}
