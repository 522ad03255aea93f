// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/cad2step/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleReport(start time.Time) types.BatchReport {
	return types.BatchReport{
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Total:      3,
		Successes:  []string{"/out/a.step", "/out/c.step"},
		Failures: []types.ItemFailure{
			{InputPath: "/in/bad.txt", Message: `unsupported file type ".txt"`},
		},
	}
}

func TestRecordAndGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	id, err := s.Record(ctx, sampleReport(start), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	run, items, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, 3, run.Total)
	assert.Equal(t, 2, run.Succeeded)
	assert.Equal(t, 1, run.Failed)
	assert.Empty(t, run.AbortError)
	assert.True(t, run.StartedAt.Equal(start))
	assert.True(t, run.FinishedAt.Equal(start.Add(90*time.Second)))

	require.Len(t, items, 3)
	assert.Equal(t, Item{Seq: 1, Status: StatusConverted, Path: "/out/a.step"}, items[0])
	assert.Equal(t, Item{Seq: 2, Status: StatusConverted, Path: "/out/c.step"}, items[1])
	assert.Equal(t, StatusFailed, items[2].Status)
	assert.Equal(t, "/in/bad.txt", items[2].Path)
	assert.Contains(t, items[2].Message, "unsupported")
}

func TestRecord_KeepsGivenRunIDAndAbort(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	report := sampleReport(time.Now())
	report.RunID = "run-fixed"

	id, err := s.Record(ctx, report, errors.New("batch aborted at item 3"))
	require.NoError(t, err)
	assert.Equal(t, "run-fixed", id)

	run, _, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "batch aborted at item 3", run.AbortError)

	_, err = s.Record(ctx, report, nil)
	assert.Error(t, err, "duplicate run IDs are rejected")
}

func TestList_NewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.Record(ctx, sampleReport(base.Add(time.Duration(i)*time.Hour)), nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[0], runs[2].ID)

	runs, err = s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestGet_NotFound(t *testing.T) {
	s := testStore(t)
	_, _, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
