// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"sync"
)

// taskKind selects which subprocess sequence a queued task runs.
type taskKind int

const (
	taskAttach taskKind = iota
	taskDetach
	taskDetachAbort
)

func (k taskKind) String() string {
	switch k {
	case taskAttach:
		return "attach"
	case taskDetach:
		return "detach"
	case taskDetachAbort:
		return "detach-abort"
	default:
		return "unknown"
	}
}

type task struct {
	kind taskKind
}

// queueCapacity bounds the number of tasks waiting to run. The event
// path must never block on the queue, so submissions beyond this are
// dropped.
const queueCapacity = 32

// taskQueue is a bounded FIFO with a single consumer. Producers
// submit without blocking; a full queue drops the task with a
// warning. Drain closes the queue for good: the consumer finishes the
// backlog and returns.
type taskQueue struct {
	logger *slog.Logger

	mu       sync.Mutex
	tasks    chan task
	draining bool
}

func newTaskQueue(logger *slog.Logger) *taskQueue {
	return &taskQueue{
		logger: logger,
		tasks:  make(chan task, queueCapacity),
	}
}

// Submit enqueues a task without blocking. Tasks submitted after a
// drain began, or while the queue is full, are dropped.
func (q *taskQueue) Submit(t task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.draining {
		q.logger.Debug("process queue is draining, dropping task", "task", t.kind)
		return
	}

	select {
	case q.tasks <- t:
	default:
		q.logger.Warn("process queue is full, dropping task", "task", t.kind)
	}
}

// Drain closes the queue. The consumer runs the remaining backlog and
// then returns from Run. Safe to call more than once.
func (q *taskQueue) Drain() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.draining {
		return
	}
	q.draining = true
	close(q.tasks)
}

// Run consumes tasks in order until the queue is drained, returning
// the first error a task produces.
func (q *taskQueue) Run(run func(task) error) error {
	for t := range q.tasks {
		if err := run(t); err != nil {
			return err
		}
	}
	return nil
}
