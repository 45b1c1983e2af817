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

// Package bus carries the hand-off messages between dispatch and the step
// runner. Dispatch publishes an execute message per created run; user
// cancellation publishes a cancel message correlated by run id, observed
// cooperatively by the runner at its next suspension point.
package bus

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.New("bus: queue closed")

// ExecutePlaybook asks the runner to start or resume a run.
type ExecutePlaybook struct {
	RunID          string
	TriggerStepID  string
	PlaybookID     string
	Version        int
	OrganizationID string
	EnqueuedAt     time.Time
}

// CancelRun asks the runner to cancel a run. Cancellation is advisory: the
// runner stops at its next suspension point, not immediately.
type CancelRun struct {
	RunID          string
	OrganizationID string
	RequestedBy    string
	EnqueuedAt     time.Time
}

// Message is one bus message; exactly one field is set.
type Message struct {
	Execute *ExecutePlaybook
	Cancel  *CancelRun
}

// Publisher is the dispatch-side interface.
type Publisher interface {
	PublishExecute(ctx context.Context, msg *ExecutePlaybook) error
	PublishCancel(ctx context.Context, msg *CancelRun) error
}

// Consumer is the runner-side interface.
type Consumer interface {
	// Receive blocks until a message is available or the context is
	// cancelled.
	Receive(ctx context.Context) (*Message, error)
}

// Bus composes both sides plus lifecycle.
type Bus interface {
	Publisher
	Consumer
	Len() int
	Close() error
}
