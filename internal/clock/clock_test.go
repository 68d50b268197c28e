package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestTimerSleep_Elapses(t *testing.T) {
	start := time.Now()
	require.NoError(t, Timer().Sleep(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestTimerSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, Timer().Sleep(ctx, time.Hour), context.Canceled)
}

func TestNoDelay(t *testing.T) {
	assert.NoError(t, (NoDelay{}).Sleep(context.Background(), time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, (NoDelay{}).Sleep(ctx, time.Hour), context.Canceled)
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	require.NoError(t, r.Sleep(context.Background(), time.Second))
	require.NoError(t, r.Sleep(context.Background(), 2*time.Second))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, r.Slept)
}

func TestFixed(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.True(t, Fixed(at).Now().Equal(at))
}
