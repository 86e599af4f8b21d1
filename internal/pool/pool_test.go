package pool

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/courseforge/internal/processor"
	"github.com/backmassage/courseforge/internal/queue"
	"github.com/backmassage/courseforge/internal/route"
	"github.com/backmassage/courseforge/internal/scan"
)

func item(name string, d route.Decision, out string) *queue.Item {
	f := scan.File{Name: name, RelPath: name, AbsPath: filepath.Join("/in", name), Course: "c1"}
	return queue.NewItem(f, d, out, route.Priority(d, route.CategoryText))
}

func passItem(name string) *queue.Item {
	return item(name, route.Passthrough{}, filepath.Join("/out", name))
}

func succeed() processor.Processor {
	return processor.Func(func(context.Context, processor.Job) (processor.Outcome, error) {
		return processor.Succeeded(nil), nil
	})
}

func newPool(t *testing.T, workers int, proc processor.Processor, opts ...Option) *Pool {
	t.Helper()
	p, err := New(workers, proc, DefaultPolicy(), opts...)
	require.NoError(t, err)
	return p
}

func TestNew_Validation(t *testing.T) {
	_, err := New(0, succeed(), DefaultPolicy())
	assert.Error(t, err)
	_, err = New(1, nil, DefaultPolicy())
	assert.Error(t, err)

	p := newPool(t, 3, succeed())
	assert.Equal(t, 3, p.Queue().Limit(), "queue limit equals worker count")
}

func TestPool_ZeroItems(t *testing.T) {
	p := newPool(t, 4, succeed())
	require.NoError(t, p.Start(context.Background()))

	done := make(chan []processor.Result, 1)
	go func() { done <- p.WaitForCompletion() }()
	select {
	case res := <-done:
		assert.Empty(t, res)
	case <-time.After(time.Second):
		t.Fatal("WaitForCompletion hung on an empty pool")
	}
	assert.Equal(t, queue.Stats{}, p.Stats())
}

func TestPool_AllSucceed(t *testing.T) {
	p := newPool(t, 4, succeed())
	var items []*queue.Item
	for i := 0; i < 25; i++ {
		items = append(items, passItem(fmt.Sprintf("f%02d.txt", i)))
	}
	require.NoError(t, p.SubmitMany(items))
	require.NoError(t, p.Start(context.Background()))

	res := p.WaitForCompletion()
	assert.Len(t, res, 25)
	for _, r := range res {
		assert.True(t, r.Success)
		assert.Equal(t, 1, r.Attempt)
		assert.Equal(t, "c1", r.Course)
	}
	assert.Equal(t, queue.Stats{Total: 25, Completed: 25}, p.Stats())
}

func TestPool_RetryExhaustion(t *testing.T) {
	var calls int64
	proc := processor.Func(func(context.Context, processor.Job) (processor.Outcome, error) {
		atomic.AddInt64(&calls, 1)
		return processor.Failed(queue.NewError(queue.CodeProcessorInvocationFailed, "flaky", true)), nil
	})
	p := newPool(t, 1, proc)
	it := passItem("a.txt")
	require.NoError(t, p.Submit(it))

	res := p.WaitForCompletion()

	assert.EqualValues(t, 3, calls)
	require.Len(t, res, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{res[0].Attempt, res[1].Attempt, res[2].Attempt})
	assert.Equal(t, queue.CodeMaxAttemptsExceeded, res[2].Error.Code)

	assert.Equal(t, queue.StatusFailed, it.Status())
	assert.Equal(t, queue.CodeMaxAttemptsExceeded, it.Err().Code)
	assert.Equal(t, 1, p.Stats().Failed)
}

func TestPool_RetryThenSucceed(t *testing.T) {
	var calls int64
	proc := processor.Func(func(context.Context, processor.Job) (processor.Outcome, error) {
		if atomic.AddInt64(&calls, 1) == 1 {
			return processor.Failed(queue.NewError(queue.CodeProcessorInvocationFailed, "busy", true)), nil
		}
		return processor.Succeeded(nil), nil
	})
	p := newPool(t, 2, proc)
	it := passItem("a.txt")
	require.NoError(t, p.Submit(it))
	p.WaitForCompletion()

	assert.Equal(t, queue.StatusCompleted, it.Status())
	assert.Equal(t, 1, it.Attempts())
}

func TestPool_NonRecoverableFailsOnce(t *testing.T) {
	var calls int64
	proc := processor.Func(func(context.Context, processor.Job) (processor.Outcome, error) {
		atomic.AddInt64(&calls, 1)
		return processor.Failed(queue.NewError(queue.CodeProcessorInvocationFailed, "corrupt", false)), nil
	})
	p := newPool(t, 1, proc)
	it := passItem("a.txt")
	require.NoError(t, p.Submit(it))
	p.WaitForCompletion()

	assert.EqualValues(t, 1, calls)
	assert.Equal(t, queue.CodeProcessorInvocationFailed, it.Err().Code)
}

func TestPool_PolicyOverride(t *testing.T) {
	proc := processor.Func(func(context.Context, processor.Job) (processor.Outcome, error) {
		return processor.Failed(queue.NewError(queue.CodeProcessorInvocationFailed, "x", false)), nil
	})
	policy := Policy{MaxAttempts: 2, Recoverable: func(*queue.ErrorRecord) bool { return true }}
	p, err := New(1, proc, policy)
	require.NoError(t, err)
	it := passItem("a.txt")
	require.NoError(t, p.Submit(it))
	res := p.WaitForCompletion()

	assert.Len(t, res, 2)
	assert.Equal(t, queue.CodeMaxAttemptsExceeded, it.Err().Code)
}

func TestPool_PanicAndErrorBecomeHandlerException(t *testing.T) {
	proc := processor.Func(func(_ context.Context, job processor.Job) (processor.Outcome, error) {
		if filepath.Base(job.InputPath) == "panic.txt" {
			panic("boom")
		}
		return processor.Outcome{}, errors.New("broken handler")
	})
	p := newPool(t, 2, proc)
	a, b := passItem("panic.txt"), passItem("err.txt")
	require.NoError(t, p.SubmitMany([]*queue.Item{a, b}))
	p.WaitForCompletion()

	for _, it := range []*queue.Item{a, b} {
		assert.Equal(t, queue.StatusFailed, it.Status())
		assert.Equal(t, queue.CodeHandlerException, it.Err().Code)
		assert.False(t, it.Err().Recoverable)
	}
	assert.Contains(t, a.Err().Message, "boom")
}

func TestPool_EmptyOutcomeIsHandlerException(t *testing.T) {
	proc := processor.Func(func(context.Context, processor.Job) (processor.Outcome, error) {
		return processor.Outcome{}, nil
	})
	p := newPool(t, 1, proc)
	it := passItem("a.txt")
	require.NoError(t, p.Submit(it))
	p.WaitForCompletion()
	assert.Equal(t, queue.CodeHandlerException, it.Err().Code)
}

func TestPool_Timeout(t *testing.T) {
	var sawCancel atomic.Bool
	proc := processor.Func(func(ctx context.Context, _ processor.Job) (processor.Outcome, error) {
		<-ctx.Done()
		sawCancel.Store(true)
		return processor.Outcome{}, ctx.Err()
	})
	p := newPool(t, 1, proc, WithTimeout(30*time.Millisecond))
	it := passItem("slow.txt")
	require.NoError(t, p.Submit(it))

	start := time.Now()
	p.WaitForCompletion()
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, sawCancel.Load(), "call context is cancelled at the deadline")

	assert.Equal(t, queue.StatusFailed, it.Status())
	assert.Equal(t, queue.CodeProcessorInvocationFailed, it.Err().Code)
	assert.False(t, it.Err().Recoverable)
	assert.Contains(t, it.Err().Message, "timed out")
}

func TestPool_TimedOutCallKeepsSlot(t *testing.T) {
	var inFlight, peak int64
	proc := processor.Func(func(context.Context, processor.Job) (processor.Outcome, error) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if cur <= p || atomic.CompareAndSwapInt64(&peak, p, cur) {
				break
			}
		}
		time.Sleep(80 * time.Millisecond) // ignores ctx
		atomic.AddInt64(&inFlight, -1)
		return processor.Succeeded(nil), nil
	})
	p := newPool(t, 1, proc, WithTimeout(20*time.Millisecond))
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Submit(passItem(fmt.Sprintf("f%d", i))))
	}
	res := p.WaitForCompletion()

	assert.EqualValues(t, 1, atomic.LoadInt64(&peak))
	assert.Zero(t, atomic.LoadInt64(&inFlight), "no call outlives WaitForCompletion")
	require.Len(t, res, 4)
	for _, r := range res {
		assert.Equal(t, queue.CodeProcessorInvocationFailed, r.Error.Code)
	}
	assert.Equal(t, 4, p.Stats().Failed)
}

func TestPool_MissingDecisionAndPath(t *testing.T) {
	var calls int64
	proc := processor.Func(func(context.Context, processor.Job) (processor.Outcome, error) {
		atomic.AddInt64(&calls, 1)
		return processor.Succeeded(nil), nil
	})
	p := newPool(t, 2, proc)
	noDecision := item("a.txt", nil, "/out/a.txt")
	noPath := item("b.txt", route.Passthrough{}, "")
	unsupported := item("c.xyz", route.Unsupported{Ext: ".xyz"}, "/out/c.xyz")
	require.NoError(t, p.SubmitMany([]*queue.Item{noDecision, noPath, unsupported}))
	p.WaitForCompletion()

	assert.EqualValues(t, 0, calls, "processor never invoked")
	assert.Equal(t, queue.CodeMissingRoutingDecision, noDecision.Err().Code)
	assert.Equal(t, queue.CodeMissingOutputPath, noPath.Err().Code)
	assert.Equal(t, queue.CodeMissingRoutingDecision, unsupported.Err().Code)
	assert.Equal(t, 3, p.Stats().Failed)
}

func TestPool_Skipped(t *testing.T) {
	proc := processor.Func(func(context.Context, processor.Job) (processor.Outcome, error) {
		return processor.Skipped("output exists"), nil
	})
	p := newPool(t, 1, proc)
	it := passItem("a.txt")
	require.NoError(t, p.Submit(it))
	res := p.WaitForCompletion()

	require.Len(t, res, 1)
	assert.True(t, res[0].Skipped)
	assert.Equal(t, "output exists", it.SkipReason())
	assert.Equal(t, 1, p.Stats().Skipped)
}

func TestPool_JobFields(t *testing.T) {
	var got processor.Job
	proc := processor.Func(func(_ context.Context, job processor.Job) (processor.Outcome, error) {
		got = job
		return processor.Succeeded(nil), nil
	})
	p := newPool(t, 1, proc, WithWorkDir("/courses/c1"), WithTimeout(time.Minute))
	require.NoError(t, p.Submit(item("deck.pptx", route.Skill{Processor: "pptx", OutputExt: ".md"}, "/out/deck.md")))
	p.WaitForCompletion()

	assert.Equal(t, processor.Job{
		Processor:  "pptx",
		InputPath:  "/in/deck.pptx",
		OutputPath: "/out/deck.md",
		WorkDir:    "/courses/c1",
		Timeout:    time.Minute,
	}, got)
}

func TestPool_NeverExceedsWorkers(t *testing.T) {
	const workers = 3
	var inFlight, peak int64
	proc := processor.Func(func(context.Context, processor.Job) (processor.Outcome, error) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if cur <= p || atomic.CompareAndSwapInt64(&peak, p, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return processor.Succeeded(nil), nil
	})
	p := newPool(t, workers, proc)
	for i := 0; i < 60; i++ {
		require.NoError(t, p.Submit(passItem(fmt.Sprintf("f%d", i))))
	}
	require.NoError(t, p.Start(context.Background()))
	p.WaitForCompletion()

	assert.LessOrEqual(t, peak, int64(workers))
	assert.Equal(t, 60, p.Stats().Completed)
}

func TestPool_ProgressCallback(t *testing.T) {
	var mu sync.Mutex
	var seen []queue.Stats
	p := newPool(t, 2, succeed(), WithProgress(func(pr Progress) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, pr.Stats.Total, pr.Stats.Sum())
		seen = append(seen, pr.Stats)
	}))
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(passItem(fmt.Sprintf("f%d", i))))
	}
	p.WaitForCompletion()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 5)
}

func TestPool_ShutdownLeavesPending(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	proc := processor.Func(func(context.Context, processor.Job) (processor.Outcome, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return processor.Succeeded(nil), nil
	})
	p := newPool(t, 1, proc)
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Submit(passItem(fmt.Sprintf("f%d", i))))
	}
	require.NoError(t, p.Start(context.Background()))
	<-started

	done := make(chan []processor.Result, 1)
	go func() { done <- p.Shutdown() }()
	time.Sleep(20 * time.Millisecond)
	close(release)

	res := <-done
	assert.Len(t, res, 1, "in-flight call finished; nothing new started")
	s := p.Stats()
	assert.Equal(t, 1, s.Completed)
	assert.Equal(t, 3, s.Pending)
}

func TestPool_StartTwice(t *testing.T) {
	p := newPool(t, 1, succeed())
	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyStarted)
	p.WaitForCompletion()
}

func TestPool_StartAfterShutdown(t *testing.T) {
	p := newPool(t, 1, succeed())
	require.NoError(t, p.Submit(passItem("a.txt")))
	assert.Empty(t, p.Shutdown())
	assert.ErrorIs(t, p.Start(context.Background()), ErrShutdown)
	assert.Equal(t, 1, p.Stats().Pending)
}

func TestPool_StartRacesShutdown(t *testing.T) {
	for i := 0; i < 200; i++ {
		p := newPool(t, 2, succeed())
		require.NoError(t, p.Submit(passItem("a.txt")))

		var wg sync.WaitGroup
		wg.Add(2)
		var startErr error
		go func() {
			defer wg.Done()
			startErr = p.Start(context.Background())
		}()
		go func() {
			defer wg.Done()
			p.Shutdown()
		}()
		wg.Wait()

		if startErr != nil {
			assert.ErrorIs(t, startErr, ErrShutdown)
		}
		p.Shutdown()
		assert.Zero(t, p.Stats().Processing)
	}
}

func TestPool_ContextCancelStopsConsumption(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	proc := processor.Func(func(context.Context, processor.Job) (processor.Outcome, error) {
		cancel()
		time.Sleep(5 * time.Millisecond)
		return processor.Succeeded(nil), nil
	})
	p := newPool(t, 1, proc)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(passItem(fmt.Sprintf("f%d", i))))
	}
	require.NoError(t, p.Start(ctx))
	p.WaitForCompletion()

	s := p.Stats()
	assert.Equal(t, 1, s.Completed, "in-flight call is not cancelled")
	assert.Equal(t, 2, s.Pending)
}
