package backends

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"lsgw/internal/errors"
	"lsgw/internal/metrics"
	"lsgw/internal/slogutil"
)

// Fan-out strategies.
const (
	StrategyParallel   = "parallel"
	StrategySequential = "sequential"
)

// DefaultCallTimeout is used when an operation sets no Timeout.
const DefaultCallTimeout = 30 * time.Second

// Operation is one fan-out: which handles apply, how to call one, and
// what to do with each answer.
type Operation[R any] struct {
	// Method names the operation in logs and metrics
	Method string

	// Applies filters handles before any call is made; nil accepts all
	Applies func(h *Handle) bool

	// Call issues the request to one backend
	Call func(ctx context.Context, h *Handle) (R, error)

	// Handle receives each successful answer. Returning true stops a
	// sequential fan-out; parallel fan-outs ignore it.
	Handle func(h *Handle, result R) bool

	// Timeout is the wall-clock budget; shared by all calls of a parallel
	// fan-out, per call for a sequential one
	Timeout time.Duration
}

// FanoutReport records what happened to each backend in one fan-out.
type FanoutReport struct {
	Method     string            `json:"method"`
	Strategy   string            `json:"strategy"`
	Invoked    []string          `json:"invoked"`
	Succeeded  []string          `json:"succeeded"`
	Failed     map[string]string `json:"failed,omitempty"`
	TimedOut   []string          `json:"timedOut,omitempty"`
	DurationMs int64             `json:"durationMs"`
}

// Executor runs fan-outs on a bounded worker pool.
type Executor struct {
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewExecutor creates an executor allowing workers concurrent calls.
func NewExecutor(workers int, logger *slog.Logger) *Executor {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Executor{
		sem:    semaphore.NewWeighted(int64(workers)),
		logger: logger,
	}
}

// Acquire takes one worker slot, for callers outside fan-outs that share
// the pool (such as the lifecycle initializer).
func (e *Executor) Acquire(ctx context.Context) error {
	return e.sem.Acquire(ctx, 1)
}

// Release returns a worker slot taken by Acquire.
func (e *Executor) Release() {
	e.sem.Release(1)
}

type callResult[R any] struct {
	idx   int
	value R
	err   error
}

// Parallel calls every applicable handle concurrently. Answers are handed
// to op.Handle one at a time in handle order once all calls have finished
// or the budget has run out. Failed and late calls are logged and left
// out.
func Parallel[R any](ctx context.Context, e *Executor, handles []*Handle, op Operation[R]) *FanoutReport {
	start := time.Now()
	report := newFanoutReport(op.Method, StrategyParallel)

	applicable := filterHandles(handles, op.Applies)
	if len(applicable) == 0 {
		return finishReport(report, start)
	}

	budget, cancel := context.WithTimeout(ctx, timeoutOf(op))
	defer cancel()

	// buffered so calls finishing after the budget never block
	ch := make(chan callResult[R], len(applicable))
	for i, h := range applicable {
		report.Invoked = append(report.Invoked, h.ID)
		go func(idx int, h *Handle) {
			if err := e.sem.Acquire(budget, 1); err != nil {
				ch <- callResult[R]{idx: idx, err: err}
				return
			}
			defer e.sem.Release(1)

			v, err := op.Call(budget, h)
			ch <- callResult[R]{idx: idx, value: v, err: err}
		}(i, h)
	}

	results := make([]*callResult[R], len(applicable))
collect:
	for received := 0; received < len(applicable); received++ {
		select {
		case res := <-ch:
			results[res.idx] = &res
		case <-budget.Done():
			break collect
		}
	}

	for i, h := range applicable {
		res := results[i]
		if res == nil {
			res = &callResult[R]{err: budget.Err()}
		}
		if !e.record(report, h.ID, res.err) {
			continue
		}
		if op.Handle != nil {
			op.Handle(h, res.value)
		}
	}
	return finishReport(report, start)
}

// Sequential calls applicable handles in order until op.Handle returns
// true. Failing calls are logged and skipped.
func Sequential[R any](ctx context.Context, e *Executor, handles []*Handle, op Operation[R]) *FanoutReport {
	start := time.Now()
	report := newFanoutReport(op.Method, StrategySequential)

	for _, h := range filterHandles(handles, op.Applies) {
		if ctx.Err() != nil {
			break
		}
		report.Invoked = append(report.Invoked, h.ID)

		v, err := callOne(ctx, e, h, op)
		if !e.record(report, h.ID, err) {
			continue
		}
		if op.Handle != nil && op.Handle(h, v) {
			break
		}
	}
	return finishReport(report, start)
}

func callOne[R any](ctx context.Context, e *Executor, h *Handle, op Operation[R]) (R, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeoutOf(op))
	defer cancel()

	if err := e.sem.Acquire(callCtx, 1); err != nil {
		var zero R
		return zero, err
	}
	defer e.sem.Release(1)
	return op.Call(callCtx, h)
}

// record files one call outcome in the report, logs failures and reports
// whether the call succeeded.
func (e *Executor) record(report *FanoutReport, id string, err error) bool {
	if err == nil {
		report.Succeeded = append(report.Succeeded, id)
		metrics.RecordFanoutCall(report.Method, id, metrics.OutcomeSuccess)
		return true
	}

	logger := slogutil.ForBackend(e.logger, id)
	if stderrors.Is(err, context.DeadlineExceeded) {
		report.TimedOut = append(report.TimedOut, id)
		metrics.RecordFanoutCall(report.Method, id, metrics.OutcomeTimeout)
		logger.Warn("Backend call timed out", "method", report.Method)
		return false
	}

	gerr := errors.ForBackend(errors.PerCallError, id, report.Method+" failed", err)
	report.Failed[id] = gerr.Error()
	metrics.RecordFanoutCall(report.Method, id, metrics.OutcomeError)
	logger.Warn("Backend call failed", "method", report.Method, "error", err.Error())
	return false
}

func newFanoutReport(method, strategy string) *FanoutReport {
	return &FanoutReport{
		Method:    method,
		Strategy:  strategy,
		Invoked:   []string{},
		Succeeded: []string{},
		Failed:    make(map[string]string),
	}
}

func finishReport(report *FanoutReport, start time.Time) *FanoutReport {
	elapsed := time.Since(start)
	report.DurationMs = elapsed.Milliseconds()
	metrics.RecordFanout(report.Method, report.Strategy, elapsed.Seconds())
	return report
}

func filterHandles(handles []*Handle, applies func(*Handle) bool) []*Handle {
	out := make([]*Handle, 0, len(handles))
	seen := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		if h == nil {
			continue
		}
		if _, dup := seen[h.ID]; dup {
			continue
		}
		seen[h.ID] = struct{}{}
		if applies == nil || applies(h) {
			out = append(out, h)
		}
	}
	return out
}

func timeoutOf[R any](op Operation[R]) time.Duration {
	if op.Timeout > 0 {
		return op.Timeout
	}
	return DefaultCallTimeout
}
