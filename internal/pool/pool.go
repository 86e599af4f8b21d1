package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/backmassage/courseforge/internal/processor"
	"github.com/backmassage/courseforge/internal/queue"
	"github.com/backmassage/courseforge/internal/route"
)

// DefaultTimeout bounds one processor call.
const DefaultTimeout = 2 * time.Minute

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("pool already started")
	// ErrShutdown is returned by Start after Shutdown.
	ErrShutdown = errors.New("pool shut down")
)

// Logger is the subset of logging used by the pool.
type Logger interface {
	Retry(string, ...interface{})
	Error(string, ...interface{})
}

type nopLogger struct{}

func (nopLogger) Retry(string, ...interface{}) {}
func (nopLogger) Error(string, ...interface{}) {}

// Progress is passed to the progress callback after every state update.
type Progress struct {
	Item   *queue.Item
	Result processor.Result
	Stats  queue.Stats
}

// Option configures a Pool.
type Option func(*Pool)

// WithTimeout sets the per-call processor timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithWorkDir sets the working directory handed to every job.
func WithWorkDir(dir string) Option {
	return func(p *Pool) { p.workDir = dir }
}

// WithLogger sets the logger for retries and failures.
func WithLogger(l Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.log = l
		}
	}
}

// WithProgress registers a callback invoked after each state update. It
// runs on worker goroutines and must be safe for concurrent use.
func WithProgress(fn func(Progress)) Option {
	return func(p *Pool) { p.progress = fn }
}

// Pool runs a fixed number of workers draining its own queue. The queue's
// concurrency limit equals the worker count.
type Pool struct {
	q        *queue.Queue
	proc     processor.Processor
	policy   Policy
	workers  int
	timeout  time.Duration
	workDir  string
	log      Logger
	progress func(Progress)

	stopping atomic.Bool
	wg       sync.WaitGroup

	mu      sync.Mutex
	cancel  context.CancelFunc // nil until Start
	results []processor.Result
}

// New creates a pool of workers calling proc.
func New(workers int, proc processor.Processor, policy Policy, opts ...Option) (*Pool, error) {
	if workers < 1 {
		return nil, fmt.Errorf("workers must be >= 1, got %d", workers)
	}
	if proc == nil {
		return nil, errors.New("pool needs a processor")
	}
	q, err := queue.New(workers, policy.MaxAttempts)
	if err != nil {
		return nil, err
	}
	p := &Pool{
		q:       q,
		proc:    proc,
		policy:  policy,
		workers: workers,
		timeout: DefaultTimeout,
		log:     nopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Queue returns the pool's queue.
func (p *Pool) Queue() *queue.Queue { return p.q }

// Stats returns the queue's current counts.
func (p *Pool) Stats() queue.Stats { return p.q.Stats() }

// Submit enqueues one item.
func (p *Pool) Submit(it *queue.Item) error { return p.q.Submit(it) }

// SubmitMany enqueues items in order.
func (p *Pool) SubmitMany(items []*queue.Item) error { return p.q.SubmitMany(items) }

// Start launches the workers. When ctx is done the workers stop taking new
// items; calls already running continue until they return. Start after
// Shutdown returns ErrShutdown.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return ErrAlreadyStarted
	}
	if p.stopping.Load() {
		return ErrShutdown
	}
	base, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.loop(base)
	}
	return nil
}

func (p *Pool) cancelFunc() context.CancelFunc {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel
}

// WaitForCompletion closes the queue, waits until every submitted item is
// terminal (or the start context ended), and returns all results in the
// order they were produced. It starts the pool if needed.
func (p *Pool) WaitForCompletion() []processor.Result {
	_ = p.Start(context.Background())
	p.q.Close()
	p.wg.Wait()
	if cancel := p.cancelFunc(); cancel != nil {
		cancel()
	}
	return p.Results()
}

// Shutdown stops consumption: no worker picks up another item, calls in
// flight run to completion, and items still pending stay pending. It
// returns the results produced so far.
func (p *Pool) Shutdown() []processor.Result {
	p.mu.Lock()
	p.stopping.Store(true)
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.q.Close()
	p.wg.Wait()
	return p.Results()
}

// Results returns a copy of the results produced so far.
func (p *Pool) Results() []processor.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]processor.Result(nil), p.results...)
}

func (p *Pool) loop(ctx context.Context) {
	defer p.wg.Done()
	for !p.stopping.Load() && ctx.Err() == nil {
		it, ok := p.q.Acquire(ctx)
		if !ok {
			return
		}
		p.handle(ctx, it)
	}
}

// handle runs one attempt of it and records the state transition.
func (p *Pool) handle(ctx context.Context, it *queue.Item) {
	start := time.Now()
	f := it.File()
	res := processor.Result{
		ItemID:     it.ID(),
		Course:     f.Course,
		InputPath:  f.AbsPath,
		OutputPath: it.OutputPath(),
		Attempt:    it.Attempts() + 1,
	}

	var out processor.Outcome
	rec := p.precheck(it)
	if rec == nil {
		job := processor.Job{
			Processor:  route.Processor(it.Decision()),
			InputPath:  f.AbsPath,
			OutputPath: it.OutputPath(),
			WorkDir:    p.workDir,
			Timeout:    p.timeout,
		}
		out, rec = p.invoke(ctx, job)
	}
	res.Duration = time.Since(start)
	res.Warnings = out.Warnings

	var err error
	switch {
	case rec == nil && out.Success:
		err = p.q.Complete(it)
		res.Success = true
		res.OutputSize = processor.OutputSize(res.OutputPath)
	case rec == nil && out.Skipped:
		err = p.q.Skip(it, out.SkipReason)
		res.Skipped = true
		res.SkipReason = out.SkipReason
	case p.policy.recoverable(rec):
		var st queue.Status
		st, err = p.q.Retry(it, rec)
		res.Error = rec
		if st == queue.StatusFailed {
			res.Error = it.Err()
			p.log.Error("%s: %s", f.RelPath, res.Error.Message)
		} else if err == nil {
			res.Retried = true
			p.log.Retry("%s (attempt %d/%d): %s", f.RelPath, res.Attempt, it.MaxAttempts(), rec.Message)
		}
	default:
		err = p.q.Fail(it, rec)
		res.Error = rec
		p.log.Error("%s: %s", f.RelPath, rec.Error())
	}
	if err != nil {
		p.log.Error("queue transition for %s: %v", f.RelPath, err)
	}

	p.mu.Lock()
	p.results = append(p.results, res)
	p.mu.Unlock()

	if p.progress != nil {
		p.progress(Progress{Item: it, Result: res, Stats: p.q.Stats()})
	}
}

// precheck rejects items the pool cannot hand to a processor.
func (p *Pool) precheck(it *queue.Item) *queue.ErrorRecord {
	d := it.Decision()
	if d == nil {
		return queue.Errorf(queue.CodeMissingRoutingDecision, "no routing decision for %s", it.File().RelPath)
	}
	if route.Processor(d) == "" {
		return queue.Errorf(queue.CodeMissingRoutingDecision, "%s decision for %s has no processor", d.Method(), it.File().RelPath)
	}
	if it.OutputPath() == "" {
		return queue.Errorf(queue.CodeMissingOutputPath, "no output path for %s", it.File().RelPath)
	}
	return nil
}

type callResult struct {
	out processor.Outcome
	rec *queue.ErrorRecord
}

// invoke calls the processor under the per-call timeout. The call does not
// inherit cancellation from base, only its values. A panic or a returned
// error becomes handler-exception. At the deadline the call's context is
// cancelled and invoke still waits for it to return, so the item keeps its
// processing slot; the attempt is reported as a non-recoverable
// processor-invocation-failed.
func (p *Pool) invoke(base context.Context, job processor.Job) (processor.Outcome, *queue.ErrorRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(base), p.timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{rec: queue.Errorf(queue.CodeHandlerException, "processor %s panicked: %v", job.Processor, r)}
			}
		}()
		out, err := p.proc.Process(ctx, job)
		switch {
		case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
			done <- callResult{rec: timeoutRecord(job)}
		case err != nil:
			done <- callResult{rec: queue.Errorf(queue.CodeHandlerException, "processor %s: %v", job.Processor, err)}
		case out.Error != nil:
			done <- callResult{out: out, rec: out.Error}
		case !out.Success && !out.Skipped:
			done <- callResult{rec: queue.Errorf(queue.CodeHandlerException, "processor %s returned neither success, skip nor error", job.Processor)}
		default:
			done <- callResult{out: out}
		}
	}()

	select {
	case r := <-done:
		return r.out, r.rec
	case <-ctx.Done():
		<-done
		return processor.Outcome{}, timeoutRecord(job)
	}
}

func timeoutRecord(job processor.Job) *queue.ErrorRecord {
	return queue.Errorf(queue.CodeProcessorInvocationFailed, "processor %s timed out after %s", job.Processor, job.Timeout).
		With("input", job.InputPath)
}
