// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pdiddy/cad2step/internal/host"
	"github.com/pdiddy/cad2step/pkg/types"
)

// SessionProvider supplies the host session for a batch.
type SessionProvider interface {
	Acquire(ctx context.Context) (host.Session, error)
}

// plan is one submitted input together with its request, or the error
// that prevented building one.
type plan struct {
	input string
	req   types.ConversionRequest
	err   error
}

// Orchestrator sequences conversions over one shared session per call.
// Calls must not overlap; the session supports one open document at a time.
type Orchestrator struct {
	sessions    SessionProvider
	engine      *Engine
	itemTimeout time.Duration
	logger      *slog.Logger
	w           io.Writer
	now         func() time.Time
}

// NewOrchestrator creates an Orchestrator. Per-item status lines are written
// to w; a nil w or logger discards output.
func NewOrchestrator(sessions SessionProvider, cfg types.ConversionConfig, logger *slog.Logger, w io.Writer) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if w == nil {
		w = io.Discard
	}
	return &Orchestrator{
		sessions:    sessions,
		engine:      NewEngine(logger),
		itemTimeout: cfg.ItemTimeout,
		logger:      logger,
		w:           w,
		now:         time.Now,
	}
}

// Convert converts a single file. An empty output selects
// DefaultOutputPath. It is a batch of one that surfaces the item's error
// directly: *UnsupportedFormatError, *host.ConnectionError, *OpenError,
// *ExportError, *FileSystemError, or an *AbortError on session loss.
func (o *Orchestrator) Convert(ctx context.Context, input, output string) (string, error) {
	req, err := NewRequest(input, output)
	if err != nil {
		return "", err
	}

	report, err := o.run(ctx, []plan{{input: input, req: req}}, nil)
	if err != nil {
		return "", err
	}
	if report.HasFailures() {
		return "", report.Failures[0].Err
	}
	return report.Successes[0], nil
}

// ConvertBatch converts inputs in order over one session. Each output goes
// to BatchOutputPath(input, outputDir). Per-item failures are collected in
// the report and never stop the batch. Only session acquisition failure,
// session loss, an item timeout, or context cancellation return an error;
// the report then covers the items finished before it.
func (o *Orchestrator) ConvertBatch(ctx context.Context, inputs []string, outputDir string, sink types.ProgressSink) (types.BatchReport, error) {
	plans := make([]plan, len(inputs))
	for i, in := range inputs {
		out := ""
		if outputDir != "" {
			out = BatchOutputPath(in, outputDir)
		}
		req, err := NewRequest(in, out)
		plans[i] = plan{input: in, req: req, err: err}
	}
	return o.run(ctx, plans, sink)
}

func (o *Orchestrator) run(ctx context.Context, plans []plan, sink types.ProgressSink) (types.BatchReport, error) {
	total := len(plans)
	report := types.BatchReport{
		StartedAt: o.now(),
		Total:     total,
		Successes: []string{},
		Failures:  []types.ItemFailure{},
	}

	// Batches made only of unsupported inputs never touch the host.
	var sess host.Session
	if needsSession(plans) {
		s, err := o.sessions.Acquire(ctx)
		if err != nil {
			report.FinishedAt = o.now()
			o.logger.Error("acquiring host session failed", "error", err)
			return report, err
		}
		sess = s
	}

	for i, p := range plans {
		n := i + 1
		if err := ctx.Err(); err != nil {
			return o.abort(report, n, p.input, err)
		}
		if sink != nil {
			sink(types.ProgressEvent{Current: n, Total: total, Identifier: p.input})
		}

		if p.err != nil {
			o.recordFailure(&report, n, p.input, p.err)
			continue
		}

		out, err := o.convertItem(ctx, sess, p.req)
		if err != nil {
			if isSessionFatal(err) {
				return o.abort(report, n, p.input, err)
			}
			o.recordFailure(&report, n, p.input, err)
			continue
		}

		report.Successes = append(report.Successes, out)
		fmt.Fprintf(o.w, "converted: (%d/%d) %s\n", n, total, out)
		o.logger.Debug("converted", "index", n, "total", total, "input", p.input, "output", out)
	}

	report.FinishedAt = o.now()
	fmt.Fprintf(o.w, "\nBatch summary: %d converted, %d failed (total: %d)\n",
		len(report.Successes), len(report.Failures), total)
	return report, nil
}

// convertItem runs one conversion on its own goroutine so that a host call
// that ignores cancellation cannot hold the batch past its deadline. After
// a timeout the goroutine may still be using the session, which is why a
// timeout aborts the batch.
func (o *Orchestrator) convertItem(ctx context.Context, sess host.Session, req types.ConversionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	itemCtx, cancel := ctx, context.CancelFunc(func() {})
	if o.itemTimeout > 0 {
		itemCtx, cancel = context.WithTimeout(ctx, o.itemTimeout)
	}
	defer cancel()

	type outcome struct {
		out string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := o.engine.ConvertOne(itemCtx, sess, req)
		done <- outcome{out: out, err: err}
	}()

	select {
	case r := <-done:
		return o.settle(ctx, itemCtx, req.InputPath, r.out, r.err)
	case <-itemCtx.Done():
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "", o.timeoutError(req.InputPath)
	}
}

// settle returns the outcome of an item that finished on its own. Only a
// call cut off by the item deadline becomes ErrItemTimeout; an item that
// failed for its own reasons near the deadline stays a per-item failure.
func (o *Orchestrator) settle(ctx, itemCtx context.Context, input, out string, err error) (string, error) {
	if err != nil && ctx.Err() == nil && itemCtx.Err() != nil && isSessionFatal(err) {
		return "", o.timeoutError(input)
	}
	return out, err
}

func (o *Orchestrator) timeoutError(input string) error {
	return fmt.Errorf("%s after %v: %w", input, o.itemTimeout, ErrItemTimeout)
}

func (o *Orchestrator) recordFailure(report *types.BatchReport, n int, input string, err error) {
	report.Failures = append(report.Failures, types.ItemFailure{
		InputPath: input,
		Message:   err.Error(),
		Err:       err,
	})
	fmt.Fprintf(o.w, "failed:  (%d/%d) %s (%v)\n", n, report.Total, input, err)
	o.logger.Debug("conversion failed", "index", n, "total", report.Total, "input", input, "error", err)
}

func (o *Orchestrator) abort(report types.BatchReport, n int, input string, err error) (types.BatchReport, error) {
	report.FinishedAt = o.now()
	abortErr := &AbortError{Index: n, Input: input, Err: err}
	o.logger.Error("batch aborted", "index", n, "total", report.Total, "input", input, "error", err)
	fmt.Fprintf(o.w, "aborted: (%d/%d) %s (%v)\n", n, report.Total, input, err)
	return report, abortErr
}

func needsSession(plans []plan) bool {
	for _, p := range plans {
		if p.err == nil {
			return true
		}
	}
	return false
}

// IsAbort reports whether err ended a batch early rather than a single item.
func IsAbort(err error) bool {
	var abortErr *AbortError
	return errors.As(err, &abortErr)
}
