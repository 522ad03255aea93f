// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ExportExtension is the file extension written by every conversion.
const ExportExtension = ".step"

// DocumentKind identifies the category of a CAD document. The numeric value
// is the type code the host expects when opening a document.
type DocumentKind int

const (
	KindUnknown  DocumentKind = 0
	KindPart     DocumentKind = 1
	KindAssembly DocumentKind = 2
	KindDrawing  DocumentKind = 3
)

// String returns the lower-case kind name.
func (k DocumentKind) String() string {
	switch k {
	case KindPart:
		return "part"
	case KindAssembly:
		return "assembly"
	case KindDrawing:
		return "drawing"
	default:
		return "unknown"
	}
}

// Code returns the host type code for the kind.
func (k DocumentKind) Code() int { return int(k) }

// ConversionRequest is one file to convert. InputPath and OutputPath are
// absolute. Kind is always a recognised kind; requests for unrecognised
// extensions are never constructed.
type ConversionRequest struct {
	InputPath  string       `json:"input_path" yaml:"input_path"`
	OutputPath string       `json:"output_path" yaml:"output_path"`
	Kind       DocumentKind `json:"kind" yaml:"kind"`
}

// ItemFailure records one input that could not be converted. Err holds the
// typed error for callers that need errors.As; Message is its text.
type ItemFailure struct {
	InputPath string `json:"input_path" yaml:"input_path"`
	Message   string `json:"message" yaml:"message"`
	Err       error  `json:"-" yaml:"-"`
}

// BatchReport is the outcome of one batch run. Successes holds output paths
// in submission order; Failures holds failed inputs in submission order.
type BatchReport struct {
	RunID      string        `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
	Total      int           `json:"total" yaml:"total"`
	Successes  []string      `json:"successes" yaml:"successes"`
	Failures   []ItemFailure `json:"failures" yaml:"failures"`
}

// Processed returns the number of items with an outcome.
func (r BatchReport) Processed() int {
	return len(r.Successes) + len(r.Failures)
}

// HasFailures reports whether any item failed conversion.
func (r BatchReport) HasFailures() bool {
	return len(r.Failures) > 0
}

// ProgressEvent announces that item Current of Total is about to be
// processed. Current is 1-indexed.
type ProgressEvent struct {
	Current    int    `json:"current" yaml:"current"`
	Total      int    `json:"total" yaml:"total"`
	Identifier string `json:"identifier" yaml:"identifier"`
}

// ProgressSink receives progress events. It is called synchronously from the
// goroutine running the batch, before each item is processed.
type ProgressSink func(ProgressEvent)

// Tee returns a sink that forwards each event to every non-nil sink in order.
// It returns nil when no sinks are given.
func Tee(sinks ...ProgressSink) ProgressSink {
	var live []ProgressSink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	if len(live) == 0 {
		return nil
	}
	return func(ev ProgressEvent) {
		for _, s := range live {
			s(ev)
		}
	}
}
