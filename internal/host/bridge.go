// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pdiddy/cad2step/pkg/types"
)

// exitSessionGone is the bridge exit status for "the host process is gone".
const exitSessionGone = 3

// result is the outcome of one bridge invocation.
type result struct {
	stdout []byte
	stderr []byte
	code   int
}

// executor abstracts command execution for testing.
type executor interface {
	// Run executes name with args. A non-nil error means the command could
	// not be run at all; a non-zero exit status is reported in result.code.
	Run(ctx context.Context, name string, args ...string) (result, error)
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) Run(ctx context.Context, name string, args ...string) (result, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result{}, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return result{stdout: stdout.Bytes(), stderr: stderr.Bytes(), code: exitErr.ExitCode()}, nil
	}
	if err != nil {
		return result{}, err
	}
	return result{stdout: stdout.Bytes(), stderr: stderr.Bytes()}, nil
}

// BridgeConnector reaches the host through a bridge executable that wraps
// the host's scripting interface. Each session operation is one invocation
// of the bridge, answering with a JSON object on stdout.
type BridgeConnector struct {
	bin  string
	exec executor
}

// NewBridgeConnector creates a connector that invokes the bridge at bin.
func NewBridgeConnector(bin string) *BridgeConnector {
	return newBridgeConnector(bin, &osExecutor{})
}

func newBridgeConnector(bin string, exec executor) *BridgeConnector {
	return &BridgeConnector{bin: bin, exec: exec}
}

func (b *BridgeConnector) Name() string { return b.bin }

type sessionResponse struct {
	Session string `json:"session"`
}

func (b *BridgeConnector) Attach(ctx context.Context) (Session, error) {
	var resp sessionResponse
	if err := b.call(ctx, &resp, "attach"); err != nil {
		return nil, err
	}
	if resp.Session == "" {
		return nil, fmt.Errorf("%s attach: no running host instance", b.bin)
	}
	return &bridgeSession{bridge: b, id: resp.Session}, nil
}

func (b *BridgeConnector) Start(ctx context.Context, opts StartOptions) (Session, error) {
	var resp sessionResponse
	if err := b.call(ctx, &resp, "start", "--visible="+strconv.FormatBool(opts.Visible)); err != nil {
		return nil, err
	}
	if resp.Session == "" {
		return nil, fmt.Errorf("%s start: bridge returned no session", b.bin)
	}
	return &bridgeSession{bridge: b, id: resp.Session}, nil
}

// call runs one bridge subcommand and decodes its stdout into v when v is
// non-nil.
func (b *BridgeConnector) call(ctx context.Context, v any, args ...string) error {
	op := args[0]
	res, err := b.exec.Run(ctx, b.bin, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("running %s %s: %w", b.bin, op, err)
	}

	switch res.code {
	case 0:
	case exitSessionGone:
		return fmt.Errorf("%s %s: %w", b.bin, op, ErrSessionLost)
	default:
		msg := strings.TrimSpace(string(res.stderr))
		if msg == "" {
			msg = "no output"
		}
		return fmt.Errorf("%s %s exited with status %d: %s", b.bin, op, res.code, msg)
	}

	if v == nil {
		return nil
	}
	if err := json.Unmarshal(res.stdout, v); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", b.bin, op, err)
	}
	return nil
}

// bridgeSession implements Session over a BridgeConnector.
type bridgeSession struct {
	bridge *BridgeConnector
	id     string
}

func (s *bridgeSession) ID() string { return s.id }

func (s *bridgeSession) Ping(ctx context.Context) error {
	return s.bridge.call(ctx, nil, "ping", "--session", s.id)
}

type openResponse struct {
	Handle string `json:"handle"`
	Diagnostics
}

func (s *bridgeSession) Open(ctx context.Context, path string, kind types.DocumentKind) (Handle, Diagnostics, error) {
	var resp openResponse
	err := s.bridge.call(ctx, &resp, "open", "--session", s.id, "--kind", strconv.Itoa(kind.Code()), path)
	if err != nil {
		return "", Diagnostics{}, err
	}
	return Handle(resp.Handle), resp.Diagnostics, nil
}

type saveResponse struct {
	Status int `json:"status"`
}

func (s *bridgeSession) SaveAs(ctx context.Context, h Handle, path string) (int, error) {
	var resp saveResponse
	if err := s.bridge.call(ctx, &resp, "save", "--session", s.id, "--handle", string(h), path); err != nil {
		return 0, err
	}
	return resp.Status, nil
}

func (s *bridgeSession) Close(ctx context.Context, h Handle) error {
	return s.bridge.call(ctx, nil, "close", "--session", s.id, "--handle", string(h))
}
