package cron

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	_, err := NewScheduler("every tuesday", func(context.Context, string) error { return nil }, 0, testLogger())
	assert.Error(t, err)
}

func TestScheduler_RunUsesRunDate(t *testing.T) {
	var got string
	s, err := NewScheduler("0 3 * * *", func(_ context.Context, versionDate string) error {
		got = versionDate
		return nil
	}, time.Minute, testLogger())
	require.NoError(t, err)

	s.now = func() time.Time { return time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC) }
	s.runScheduled()
	assert.Equal(t, "2025-06-01", got)
}

func TestScheduler_JobErrorIsLogged(t *testing.T) {
	calls := 0
	s, err := NewScheduler("@daily", func(context.Context, string) error {
		calls++
		return errors.New("fetch: status 403")
	}, time.Minute, testLogger())
	require.NoError(t, err)

	assert.NotPanics(t, s.runScheduled)
	assert.Equal(t, 1, calls)
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := NewScheduler("@hourly", func(context.Context, string) error { return nil }, 0, testLogger())
	require.NoError(t, err)

	assert.True(t, s.Next().IsZero())
	require.NoError(t, s.Start())
	assert.True(t, s.Next().After(time.Now()))

	ctx := s.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
