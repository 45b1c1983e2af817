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

// Package scheduler provides cron-based recurring job scheduling for
// schedule triggers. The publisher registers one job per schedule trigger
// of the published version; each tick invokes the dispatcher's scheduled
// entry point, which re-validates all stored state before creating runs.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tombee/playbook/internal/log"
)

// TickHandler is invoked for each due job. The handler owns staleness
// checks; the scheduler fires ticks blindly.
type TickHandler func(ctx context.Context, playbookID string, version int, triggerID string)

type scheduledJob struct {
	job     RecurringJob
	expr    *CronExpr
	nextRun time.Time
}

// Ticker is an in-memory RecurringJobs implementation that fires due jobs
// from a background loop. It is the single-process stand-in for a shared
// job scheduler.
type Ticker struct {
	mu      sync.Mutex
	jobs    map[string]*scheduledJob
	handler TickHandler
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewTicker creates a Ticker firing into the given handler.
func NewTicker(handler TickHandler, logger *slog.Logger) *Ticker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ticker{
		jobs:    make(map[string]*scheduledJob),
		handler: handler,
		logger:  log.WithComponent(logger, "scheduler"),
	}
}

// Register implements RecurringJobs. Registering an existing id replaces
// the earlier registration.
func (t *Ticker) Register(ctx context.Context, job RecurringJob) error {
	expr, err := ParseCron(job.Cron)
	if err != nil {
		return err
	}
	loc := time.UTC
	if job.Timezone != "" {
		if loc, err = time.LoadLocation(job.Timezone); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[job.ID] = &scheduledJob{
		job:     job,
		expr:    expr,
		nextRun: expr.Next(time.Now().In(loc)),
	}
	return nil
}

// Unregister implements RecurringJobs. Unknown ids are a no-op; the
// publisher removes jobs for superseded versions without tracking whether
// they were ever installed.
func (t *Ticker) Unregister(ctx context.Context, jobID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, jobID)
	return nil
}

// JobIDs returns the registered job ids.
func (t *Ticker) JobIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.jobs))
	for id := range t.jobs {
		ids = append(ids, id)
	}
	return ids
}

// Start begins the tick loop.
func (t *Ticker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	t.mu.Unlock()

	go t.run(ctx)
}

// Stop stops the tick loop and waits for it to exit.
func (t *Ticker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopCh)
	t.mu.Unlock()

	<-t.doneCh
}

func (t *Ticker) run(ctx context.Context) {
	defer close(t.doneCh)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case now := <-ticker.C:
			t.tick(ctx, now)
		}
	}
}

// tick fires every due job and advances its next run time.
func (t *Ticker) tick(ctx context.Context, now time.Time) {
	t.mu.Lock()
	var due []RecurringJob
	for _, sj := range t.jobs {
		if sj.nextRun.IsZero() || now.Before(sj.nextRun) {
			continue
		}
		due = append(due, sj.job)

		loc := time.UTC
		if sj.job.Timezone != "" {
			if l, err := time.LoadLocation(sj.job.Timezone); err == nil {
				loc = l
			}
		}
		sj.nextRun = sj.expr.Next(now.In(loc))
	}
	t.mu.Unlock()

	for _, job := range due {
		go t.handler(ctx, job.PlaybookID, job.Version, job.TriggerID)
	}
}
