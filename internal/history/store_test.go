package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func stepClock(s *Store, start time.Time) {
	now := start
	s.now = func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
}

func TestBeginFinishList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	stepClock(s, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	first, err := s.Begin(ctx, "run1", "/miseq/run1")
	require.NoError(t, err)
	second, err := s.Begin(ctx, "run2", "/miseq/run2")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	require.NoError(t, s.Finish(ctx, first, StateReported, "/out/run1_gar.pdf", ""))
	require.NoError(t, s.Finish(ctx, second, StateFailed, "", "exit status 3"))

	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "run2", runs[0].RunName, "newest first")
	assert.Equal(t, StateFailed, runs[0].State)
	assert.Equal(t, "exit status 3", runs[0].Error)

	assert.Equal(t, "run1", runs[1].RunName)
	assert.Equal(t, "/miseq/run1", runs[1].Folder)
	assert.Equal(t, "/out/run1_gar.pdf", runs[1].ReportPath)
	assert.Equal(t, 2*time.Minute, runs[1].Duration())
}

func TestListLimitAndRunning(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	stepClock(s, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	for _, name := range []string{"a", "b", "c"} {
		_, err := s.Begin(ctx, name, "/miseq/"+name)
		require.NoError(t, err)
	}

	runs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].RunName)
	assert.Equal(t, "b", runs[1].RunName)
	assert.Equal(t, StateRunning, runs[0].State)
	assert.True(t, runs[0].Finished.IsZero())
	assert.Zero(t, runs[0].Duration())
}

func TestFinishUnknown(t *testing.T) {
	s := newTestStore(t)
	err := s.Finish(context.Background(), "nope", StateFailed, "", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenFilePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = s.Begin(ctx, "run1", "/miseq/run1")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run1", runs[0].RunName)
}
