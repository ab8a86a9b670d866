package protocols

import (
	"context"
	"errors"
	"io"
	"sync"

	"editorfs/model"
)

// Progress is a finite, single-use stream of entries produced by an archive
// task. Read C until it is closed, then call Wait. Cancel stops the task at
// the next entry; a cancelled task is not a failure.
type Progress struct {
	c      chan model.FileModel
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	err      error
	canceled bool
}

// emitFunc hands one entry to the consumer. It returns false once the task
// has been cancelled.
type emitFunc func(model.FileModel) bool

func startProgress(ctx context.Context, task func(ctx context.Context, emit emitFunc) error) *Progress {
	ctx, cancel := context.WithCancel(ctx)
	p := &Progress{
		c:      make(chan model.FileModel),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	emit := func(m model.FileModel) bool {
		select {
		case p.c <- m:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(p.done)
		defer cancel()

		err := task(ctx, emit)

		p.mu.Lock()
		if err != nil && (ctx.Err() != nil || errors.Is(err, context.Canceled)) {
			p.canceled = true
			err = nil
		}
		p.err = err
		p.mu.Unlock()

		close(p.c)
	}()

	return p
}

// C returns the entries in the order the task processes them.
func (p *Progress) C() <-chan model.FileModel {
	return p.c
}

// Cancel aborts the task. It is safe to call more than once.
func (p *Progress) Cancel() {
	p.cancel()
}

// Wait drains any unread entries, blocks until the task is finished and
// returns its failure, if any.
func (p *Progress) Wait() error {
	p.finish()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Canceled reports whether the task stopped because it was cancelled. Like
// Wait, it drains the stream first.
func (p *Progress) Canceled() bool {
	p.finish()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.canceled
}

func (p *Progress) finish() {
	for range p.c {
	}
	<-p.done
}

// Tap returns a stream relaying every entry of p through entry. Cancelling
// the returned stream cancels p. When done is non-nil it receives the outcome
// once p has finished and before the returned stream is closed: nil,
// context.Canceled or the task's failure.
func (p *Progress) Tap(entry func(model.FileModel), done func(error)) *Progress {
	return startProgress(context.Background(), func(ctx context.Context, emit emitFunc) (err error) {
		if done != nil {
			defer func() { done(err) }()
		}
		stop := context.AfterFunc(ctx, p.Cancel)
		defer stop()

		for m := range p.c {
			entry(m)
			if !emit(m) {
				p.Cancel()
				break
			}
		}
		if err := p.Wait(); err != nil {
			return err
		}
		if p.Canceled() {
			return context.Canceled
		}
		return nil
	})
}

// ctxReader fails reads once ctx is done so long copies observe cancellation.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r ctxReader) Read(b []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(b)
}
