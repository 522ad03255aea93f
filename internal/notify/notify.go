// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package notify publishes conversion progress and batch outcomes as JSON
// messages so other processes can follow a run.
package notify

import (
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/pdiddy/cad2step/pkg/types"
)

// Publisher sends a message on a subject. *Client implements it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// ProgressMessage is published before each item is processed.
type ProgressMessage struct {
	RunID      string `json:"run_id"`
	Current    int    `json:"current"`
	Total      int    `json:"total"`
	Input      string `json:"input"`
	HappenedAt int64  `json:"happened_at"`
}

// DoneMessage is published once when a run ends.
type DoneMessage struct {
	RunID      string              `json:"run_id"`
	Total      int                 `json:"total"`
	Successes  []string            `json:"successes"`
	Failures   []types.ItemFailure `json:"failures"`
	Error      string              `json:"error,omitempty"`
	HappenedAt int64               `json:"happened_at"`
}

// Notifier publishes the events of one run under a subject prefix.
// Publish failures are logged and never interrupt the run.
type Notifier struct {
	pub     Publisher
	subject string
	runID   string
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Notifier for runID. Messages go to <subject>.progress and
// <subject>.done.
func New(pub Publisher, subject, runID string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Notifier{pub: pub, subject: subject, runID: runID, logger: logger, now: time.Now}
}

// Sink returns a progress sink that publishes each event.
func (n *Notifier) Sink() types.ProgressSink {
	return func(ev types.ProgressEvent) {
		n.publish(n.subject+".progress", ProgressMessage{
			RunID:      n.runID,
			Current:    ev.Current,
			Total:      ev.Total,
			Input:      ev.Identifier,
			HappenedAt: n.now().Unix(),
		})
	}
}

// Done publishes the outcome of the run. err is the error that ended the
// run early, or nil.
func (n *Notifier) Done(report types.BatchReport, err error) {
	msg := DoneMessage{
		RunID:      n.runID,
		Total:      report.Total,
		Successes:  report.Successes,
		Failures:   report.Failures,
		HappenedAt: n.now().Unix(),
	}
	if err != nil {
		msg.Error = err.Error()
	}
	n.publish(n.subject+".done", msg)
}

func (n *Notifier) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		n.logger.Warn("encoding notification failed", "subject", subject, "error", err)
		return
	}
	if err := n.pub.Publish(subject, data); err != nil {
		n.logger.Warn("publishing notification failed", "subject", subject, "error", err)
	}
}
