// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/cad2step/internal/convert"
	"github.com/pdiddy/cad2step/internal/host"
	"github.com/pdiddy/cad2step/internal/worker"
	"github.com/pdiddy/cad2step/pkg/types"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setDefaults()

	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, "swbridge", cfg.Host.Bridge)
	assert.False(t, cfg.Host.Visible)
	assert.Equal(t, 5, cfg.Host.StartRetries)
	assert.Equal(t, 10*time.Minute, cfg.Conversion.ItemTimeout)
	assert.Empty(t, cfg.Conversion.OutputDir)
	assert.True(t, cfg.History.Enabled)
	assert.NotEmpty(t, cfg.History.DB)
	assert.Equal(t, "cad2step.events", cfg.Notify.Subject)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Log.Color)
}

func TestLoadConfig_Overrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setDefaults()
	viper.Set("host.visible", true)
	viper.Set("conversion.item_timeout", "90s")
	viper.Set("conversion.output_dir", "/tmp/step")

	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.Host.Visible)
	assert.Equal(t, 90*time.Second, cfg.Conversion.ItemTimeout)
	assert.Equal(t, "/tmp/step", cfg.Conversion.OutputDir)
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"per-item", &convert.OpenError{Path: "a.sldprt"}, false},
		{"aborted", &convert.AbortError{Index: 2, Input: "b.sldasm", Err: host.ErrSessionLost}, true},
		{"wrapped abort", fmt.Errorf("run: %w", &convert.AbortError{Index: 1, Err: errors.New("x")}), true},
		{"connection", &host.ConnectionError{Host: "swbridge", Attach: errors.New("a"), Start: errors.New("s")}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isFatal(tc.err))
		})
	}
}

func TestConvertOutcome(t *testing.T) {
	openErr := &convert.OpenError{Path: "/in/a.sldprt"}
	tests := []struct {
		name    string
		single  bool
		final   worker.Event
		wantMsg string
		wantErr string
	}{
		{
			name:    "single success prints the output path",
			single:  true,
			final:   worker.Event{Kind: worker.EventSuccess, Report: types.BatchReport{Total: 1, Successes: []string{"/out/a.step"}}},
			wantMsg: "Success: /out/a.step",
		},
		{
			name:    "single failure returns the conversion error",
			single:  true,
			final:   worker.Event{Kind: worker.EventFailure, Err: openErr},
			wantErr: openErr.Error(),
		},
		{
			name:  "batch with no failures exits cleanly",
			final: worker.Event{Kind: worker.EventSuccess, Report: types.BatchReport{Total: 2, Successes: []string{"/out/a.step", "/out/b.step"}}},
		},
		{
			name: "batch with one failure exits non-zero",
			final: worker.Event{Kind: worker.EventSuccess, Report: types.BatchReport{
				Total:     3,
				Successes: []string{"/out/a.step", "/out/c.step"},
				Failures:  []types.ItemFailure{{InputPath: "b.txt", Message: "unsupported file type"}},
			}},
			wantErr: "1 of 3 file(s) failed conversion",
		},
		{
			name:    "batch abort returns the abort error",
			final:   worker.Event{Kind: worker.EventFailure, Err: &convert.AbortError{Index: 2, Input: "b.sldprt", Err: host.ErrSessionLost}},
			wantErr: "batch aborted at item 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := convertOutcome(tt.single, tt.final)
			assert.Equal(t, tt.wantMsg, msg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
