package async

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/platinummonkey/storeadmin/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Success(t *testing.T) {
	executed := false
	err := Run(context.Background(), time.Second, "test task", func(ctx context.Context) error {
		executed = true
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, executed)
}

func TestRun_WrapsError(t *testing.T) {
	boom := errors.New("boom")
	err := Run(context.Background(), time.Second, "test task", func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "test task")
}

func TestRun_Timeout(t *testing.T) {
	err := Run(context.Background(), 20*time.Millisecond, "slow task", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_RecoversPanic(t *testing.T) {
	err := Run(context.Background(), time.Second, "bad task", func(ctx context.Context) error {
		panic("kaboom")
	})
	var p *PanicError
	require.ErrorAs(t, err, &p)
	assert.Equal(t, "bad task", p.Task)
	assert.Equal(t, "kaboom", p.Value)
	assert.NotEmpty(t, p.Stack)
}

func TestSafeGo(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.DebugLevel, &buf)

	done := SafeGo(context.Background(), logger, time.Second, "ok task", func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, <-done)
	_, open := <-done
	assert.False(t, open)
	assert.Empty(t, buf.String())

	done = SafeGo(context.Background(), logger, time.Second, "panicky task", func(ctx context.Context) error {
		panic("kaboom")
	})
	assert.Error(t, <-done)
	assert.Contains(t, buf.String(), "background task failed")
	assert.Contains(t, buf.String(), "panicky task")
}

func TestSafeGo_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := SafeGo(ctx, observability.NopLogger(), time.Second, "cancelled task", func(ctx context.Context) error {
		return ctx.Err()
	})
	assert.ErrorIs(t, <-done, context.Canceled)
}
