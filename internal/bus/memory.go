// Copyright 2025 Tom Barlow
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

package bus

import (
	"context"
	"sync"
	"time"
)

// MemoryBus is an in-memory message queue. Cancel messages jump ahead of
// pending execute messages so a cancellation is observed before the run it
// targets starts, when both are still queued.
type MemoryBus struct {
	mu       sync.Mutex
	messages []*Message
	signal   chan struct{}

	// done is closed on Close so every blocked receiver is released,
	// not just the first one to observe a wake signal.
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryBus creates an empty in-memory bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		messages: make([]*Message, 0),
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// PublishExecute implements Publisher.
func (b *MemoryBus) PublishExecute(ctx context.Context, msg *ExecutePlaybook) error {
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now().UTC()
	}
	return b.publish(&Message{Execute: msg}, false)
}

// PublishCancel implements Publisher.
func (b *MemoryBus) PublishCancel(ctx context.Context, msg *CancelRun) error {
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now().UTC()
	}
	return b.publish(&Message{Cancel: msg}, true)
}

func (b *MemoryBus) publish(msg *Message, front bool) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}

	b.mu.Lock()
	if front {
		b.messages = append([]*Message{msg}, b.messages...)
	} else {
		b.messages = append(b.messages, msg)
	}
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
	return nil
}

// Receive implements Consumer.
func (b *MemoryBus) Receive(ctx context.Context) (*Message, error) {
	for {
		select {
		case <-b.done:
			return nil, ErrClosed
		default:
		}

		b.mu.Lock()
		if len(b.messages) > 0 {
			msg := b.messages[0]
			b.messages = b.messages[1:]
			b.mu.Unlock()
			return msg, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.done:
			return nil, ErrClosed
		case <-b.signal:
		}
	}
}

// Len returns the number of queued messages.
func (b *MemoryBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

// Close closes the bus, releasing every blocked receiver. Pending
// messages are discarded.
func (b *MemoryBus) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}
