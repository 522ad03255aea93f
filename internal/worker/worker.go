// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package worker runs conversion jobs off the caller's goroutine and relays
// progress and the final outcome back over a channel. The caller never
// touches the host session directly; it only reads events.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pdiddy/cad2step/pkg/types"
)

// ErrBusy is returned by Start while a previous job is still running.
var ErrBusy = errors.New("a conversion job is already running")

// eventBuffer lets the worker run a few items ahead of a slow reader.
const eventBuffer = 8

// EventKind distinguishes the events a job emits.
type EventKind int

const (
	EventProgress EventKind = iota
	EventSuccess
	EventFailure
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventSuccess:
		return "success"
	case EventFailure:
		return "failure"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one message from a running job. Progress is set for
// EventProgress. Report is set for EventSuccess, and for EventFailure it
// covers whatever finished before the failure. Err is set for EventFailure.
type Event struct {
	Kind     EventKind
	Progress types.ProgressEvent
	Report   types.BatchReport
	Err      error
}

// Job is the unit of work a Runner executes. It must call sink before each
// item and must not retain it after returning.
type Job func(ctx context.Context, sink types.ProgressSink) (types.BatchReport, error)

// Converter is the conversion surface jobs are built from.
type Converter interface {
	Convert(ctx context.Context, input, output string) (string, error)
	ConvertBatch(ctx context.Context, inputs []string, outputDir string, sink types.ProgressSink) (types.BatchReport, error)
}

// SingleJob converts one file. The report holds its output path on
// success; on failure it holds the failed input and the job returns the
// conversion error unchanged.
func SingleJob(c Converter, input, output string) Job {
	return func(ctx context.Context, sink types.ProgressSink) (types.BatchReport, error) {
		report := types.BatchReport{
			StartedAt: time.Now(),
			Total:     1,
			Successes: []string{},
			Failures:  []types.ItemFailure{},
		}
		if sink != nil {
			sink(types.ProgressEvent{Current: 1, Total: 1, Identifier: input})
		}
		out, err := c.Convert(ctx, input, output)
		report.FinishedAt = time.Now()
		if err != nil {
			report.Failures = append(report.Failures, types.ItemFailure{InputPath: input, Message: err.Error(), Err: err})
			return report, err
		}
		report.Successes = append(report.Successes, out)
		return report, nil
	}
}

// BatchJob converts inputs in order, writing into outputDir when set.
// Per-item failures are part of a successful job's report.
func BatchJob(c Converter, inputs []string, outputDir string) Job {
	return func(ctx context.Context, sink types.ProgressSink) (types.BatchReport, error) {
		return c.ConvertBatch(ctx, inputs, outputDir, sink)
	}
}

// Runner executes at most one job at a time.
type Runner struct {
	mu      sync.Mutex
	running bool
}

// NewRunner creates an idle Runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Running reports whether a job is in flight.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Start runs job on a new goroutine and returns its event channel. Events
// arrive in emission order: zero or more EventProgress, then exactly one
// EventSuccess or EventFailure, then the channel is closed. Start returns
// ErrBusy while another job is running.
//
// Once ctx is done, progress events that do not fit the buffer are dropped
// so the job is never held up by a reader that stopped early. The final
// event is always delivered: the reader must receive it, even after
// cancelling, or the job goroutine stays blocked. Drain does this.
func (r *Runner) Start(ctx context.Context, job Job) (<-chan Event, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrBusy
	}
	r.running = true
	r.mu.Unlock()

	events := make(chan Event, eventBuffer)
	go func() {
		defer close(events)

		sink := func(ev types.ProgressEvent) {
			select {
			case events <- Event{Kind: EventProgress, Progress: ev}:
			case <-ctx.Done():
			}
		}
		report, err := runJob(ctx, job, sink)

		r.mu.Lock()
		r.running = false
		r.mu.Unlock()

		// The final send is unconditional; see Start.
		if err != nil {
			events <- Event{Kind: EventFailure, Report: report, Err: err}
			return
		}
		events <- Event{Kind: EventSuccess, Report: report}
	}()
	return events, nil
}

// runJob converts a panic inside job into an error so the reader always
// receives a final event.
func runJob(ctx context.Context, job Job, sink types.ProgressSink) (report types.BatchReport, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("conversion job panicked: %v", p)
		}
	}()
	return job(ctx, sink)
}

// Drain reads events until the channel closes, passing progress to
// onProgress (which may be nil), and returns the final event.
func Drain(events <-chan Event, onProgress func(types.ProgressEvent)) Event {
	var final Event
	for ev := range events {
		if ev.Kind == EventProgress {
			if onProgress != nil {
				onProgress(ev.Progress)
			}
			continue
		}
		final = ev
	}
	return final
}
