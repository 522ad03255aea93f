// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"fmt"
	"strings"

	"github.com/pdiddy/cad2step/internal/host"
)

// ErrItemTimeout reports that one item exceeded the per-item time limit.
// The host is presumed hung, so it is treated as a lost session.
var ErrItemTimeout = fmt.Errorf("conversion timed out: %w", host.ErrSessionLost)

// UnsupportedFormatError reports an input whose extension is not a
// recognised document kind. It is raised before any host interaction.
type UnsupportedFormatError struct {
	Path string
	Ext  string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file type %q for %s (supported: %s)",
		e.Ext, e.Path, strings.Join(SupportedExtensions(), ", "))
}

// OpenError reports that the host returned no document for the input.
type OpenError struct {
	Path        string
	Diagnostics host.Diagnostics
	Err         error
}

func (e *OpenError) Error() string {
	msg := fmt.Sprintf("host could not open %s (errors=%d, warnings=%d)",
		e.Path, e.Diagnostics.Errors, e.Diagnostics.Warnings)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OpenError) Unwrap() error { return e.Err }

// ExportError reports that export failed: the host returned a non-zero
// status, the call itself failed, or no file exists at Path afterwards.
type ExportError struct {
	Path    string
	Status  int
	Missing bool
	Err     error
}

func (e *ExportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("exporting %s: %v", e.Path, e.Err)
	case e.Missing:
		return fmt.Sprintf("export produced no file at %s (status %d); check that STEP export is enabled in the host", e.Path, e.Status)
	default:
		return fmt.Sprintf("export to %s failed with status %d", e.Path, e.Status)
	}
}

func (e *ExportError) Unwrap() error { return e.Err }

// FileSystemError reports that the target directory cannot be used.
type FileSystemError struct {
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("target directory %s unusable: %v", e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error { return e.Err }

// AbortError is the single error returned when a batch stops early because
// the session was lost, an item timed out, or the context was cancelled.
// Index is the 1-based item that was being processed.
type AbortError struct {
	Index int
	Input string
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("batch aborted at item %d (%s): %v", e.Index, e.Input, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }
