package runcore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glubean/runcore/types"
)

func TestSchedulerRequiresBatchFunc(t *testing.T) {
	s := NewScheduler(time.Second, true, log.New(), nil)
	require.Error(t, s.Start(context.Background()))
}

func TestSchedulerRunOnceReturnsVerdict(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(0, true, log.New(), func(ctx context.Context) ([]RunReport, error) {
		calls.Add(1)
		return []RunReport{{State: types.StateFailed}}, nil
	})

	err := s.Start(context.Background())
	assert.True(t, IsTestFailureError(err))
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, IsTestFailureError(s.LastRunError()))
}

func TestSchedulerRunOncePassingBatch(t *testing.T) {
	s := NewScheduler(0, true, log.New(), func(ctx context.Context) ([]RunReport, error) {
		return []RunReport{{State: types.StatePassed}}, nil
	})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.LastRunError())
}

func TestSchedulerContinuousMode(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(50*time.Millisecond, false, log.New(), func(ctx context.Context) ([]RunReport, error) {
		calls.Add(1)
		return []RunReport{{State: types.StatePassed}}, nil
	})

	require.NoError(t, s.Start(context.Background()))
	// The first batch runs synchronously on Start; wait for periodic ones.
	require.Eventually(t, func() bool { return calls.Load() >= 3 },
		5*time.Second, 20*time.Millisecond)

	s.Stop()
	assert.True(t, s.Stopped())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.WaitForShutdown(ctx))
}

func TestSchedulerContinuousModeSurvivesFailingBatch(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(50*time.Millisecond, false, log.New(), func(ctx context.Context) ([]RunReport, error) {
		calls.Add(1)
		return nil, errors.New("boom")
	})

	// A failing batch must not abort the loop, only be remembered.
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return calls.Load() >= 2 },
		5*time.Second, 20*time.Millisecond)
	assert.EqualError(t, s.LastRunError(), "boom")

	s.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.WaitForShutdown(ctx))
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s := NewScheduler(time.Hour, false, log.New(), func(ctx context.Context) ([]RunReport, error) {
		return nil, nil
	})

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()
	assert.True(t, s.Stopped())
}
