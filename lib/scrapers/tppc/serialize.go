package tppc

import (
	"context"
	"sync"
)

// Serializer executes submitted tasks strictly one at a time in
// submission order. the upstream host is rate sensitive and session
// stateful, concurrent requests under one session race on cookies.
//
// a failing task does not affect the tasks queued behind it. tasks are
// expected to bound their own runtime (the http client carries a
// timeout), the serializer itself never interrupts a running task.
type Serializer struct {
	tasks     chan *serializedTask
	closeOnce sync.Once
}

type serializedTask struct {
	ctx  context.Context
	run  func()
	ran  bool
	done chan struct{}
}

func NewSerializer() *Serializer {
	s := &Serializer{
		tasks: make(chan *serializedTask, 64),
	}
	go s.worker()
	return s
}

func (s *Serializer) worker() {
	for task := range s.tasks {
		// a task whose caller gave up while queued is skipped, not run
		if task.ctx.Err() == nil {
			task.run()
			task.ran = true
		}
		close(task.done)
	}
}

// Do enqueues fn and blocks until it has run. returns the context's
// error if the caller gave up before fn started, in which case fn is
// never executed. once fn has started, Do always waits for it.
func (s *Serializer) Do(ctx context.Context, fn func()) error {
	task := &serializedTask{
		ctx:  ctx,
		run:  fn,
		done: make(chan struct{}),
	}
	select {
	case s.tasks <- task:
	case <-ctx.Done():
		return ctx.Err()
	}

	<-task.done
	if !task.ran {
		return ctx.Err()
	}
	return nil
}

func (s *Serializer) Close() {
	s.closeOnce.Do(func() {
		close(s.tasks)
	})
}
