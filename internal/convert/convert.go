// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert exports CAD documents to STEP through a host session.
// The Engine performs one open/export/close cycle; the Orchestrator runs
// many of them in order over a single shared session.
package convert

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/cad2step/internal/host"
	"github.com/pdiddy/cad2step/pkg/types"
)

// KindFor returns the document kind for path's extension, compared
// case-insensitively.
func KindFor(path string) (types.DocumentKind, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sldprt":
		return types.KindPart, true
	case ".sldasm":
		return types.KindAssembly, true
	case ".slddrw":
		return types.KindDrawing, true
	default:
		return types.KindUnknown, false
	}
}

// SupportedExtensions lists the recognised input extensions.
func SupportedExtensions() []string {
	return []string{".sldasm", ".slddrw", ".sldprt"}
}

// DefaultOutputPath returns input with its extension replaced by the export
// extension.
func DefaultOutputPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + types.ExportExtension
}

// BatchOutputPath returns where a batch writes the output for input:
// outputDir/<stem>.step when outputDir is set, else next to the input.
func BatchOutputPath(input, outputDir string) string {
	if outputDir == "" {
		return DefaultOutputPath(input)
	}
	return filepath.Join(outputDir, filepath.Base(DefaultOutputPath(input)))
}

// NewRequest builds a request for input. An empty output selects
// DefaultOutputPath. Both paths are made absolute. Inputs with an
// unrecognised extension yield an *UnsupportedFormatError.
func NewRequest(input, output string) (types.ConversionRequest, error) {
	kind, ok := KindFor(input)
	if !ok {
		return types.ConversionRequest{}, &UnsupportedFormatError{
			Path: input,
			Ext:  strings.ToLower(filepath.Ext(input)),
		}
	}

	in, err := filepath.Abs(input)
	if err != nil {
		return types.ConversionRequest{}, &FileSystemError{Path: input, Err: err}
	}
	if output == "" {
		output = DefaultOutputPath(in)
	}
	out, err := filepath.Abs(output)
	if err != nil {
		return types.ConversionRequest{}, &FileSystemError{Path: output, Err: err}
	}

	return types.ConversionRequest{InputPath: in, OutputPath: out, Kind: kind}, nil
}

// Engine runs single conversions against a host session.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an Engine. A nil logger discards output.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{logger: logger}
}

// ConvertOne opens req.InputPath in the session, exports it to
// req.OutputPath, closes it, and verifies the output exists. It returns the
// absolute output path.
//
// The extension is checked before the session is touched, and any file
// already at the target is removed before the open. The document is closed
// whenever the host returned a handle; a close failure is logged and never
// replaces the export outcome. Errors wrapping host.ErrSessionLost or a
// context error are returned unwrapped by the taxonomy so the caller can
// tell them apart from per-item failures.
func (e *Engine) ConvertOne(ctx context.Context, s host.Session, req types.ConversionRequest) (string, error) {
	kind, ok := KindFor(req.InputPath)
	if !ok {
		return "", &UnsupportedFormatError{Path: req.InputPath, Ext: strings.ToLower(filepath.Ext(req.InputPath))}
	}

	dir := filepath.Dir(req.OutputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &FileSystemError{Path: dir, Err: err}
	}

	// A stale file would satisfy the existence check below on its own, and
	// must not outlive a failed open either.
	if err := os.Remove(req.OutputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", &FileSystemError{Path: dir, Err: err}
	}

	e.logger.Debug("opening document", "input", req.InputPath, "kind", kind)
	h, diag, err := s.Open(ctx, req.InputPath, kind)
	if err != nil {
		if h != "" {
			e.closeDocument(ctx, s, h, req.InputPath)
		}
		if isSessionFatal(err) {
			return "", err
		}
		return "", &OpenError{Path: req.InputPath, Diagnostics: diag, Err: err}
	}
	if h == "" {
		return "", &OpenError{Path: req.InputPath, Diagnostics: diag}
	}

	e.logger.Debug("exporting document", "input", req.InputPath, "output", req.OutputPath)
	status, saveErr := s.SaveAs(ctx, h, req.OutputPath)
	e.closeDocument(ctx, s, h, req.InputPath)

	if saveErr != nil {
		if isSessionFatal(saveErr) {
			return "", saveErr
		}
		removePartial(req.OutputPath)
		return "", &ExportError{Path: req.OutputPath, Status: status, Err: saveErr}
	}
	if status != 0 {
		removePartial(req.OutputPath)
		return "", &ExportError{Path: req.OutputPath, Status: status}
	}
	if _, err := os.Stat(req.OutputPath); err != nil {
		return "", &ExportError{Path: req.OutputPath, Status: status, Missing: true}
	}

	return req.OutputPath, nil
}

func (e *Engine) closeDocument(ctx context.Context, s host.Session, h host.Handle, input string) {
	if err := s.Close(ctx, h); err != nil {
		e.logger.Warn("closing document failed", "input", input, "error", err)
	}
}

// isSessionFatal reports whether err ends the session rather than the item.
// Only the error itself decides: a host failure that happens to arrive as
// the context ends is still a per-item failure.
func isSessionFatal(err error) bool {
	return errors.Is(err, host.ErrSessionLost) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func removePartial(path string) {
	_ = os.Remove(path)
}
