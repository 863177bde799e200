package sbmark

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumafield/s3-load-benchmark/obmark"
)

func TestProfileIterationsBy(t *testing.T) {
	p := Profile{
		StartRate: 0,
		TimeUnit:  time.Second,
		Stages: []Stage{
			{Duration: 10 * time.Second, Target: 100},
			{Duration: 10 * time.Second, Target: 100},
			{Duration: 10 * time.Second, Target: 0},
		},
	}

	assert.InDelta(t, 0, p.IterationsBy(0), 1e-9)
	// ramp 0 -> 100 over 10s
	assert.InDelta(t, 125, p.IterationsBy(5*time.Second), 1e-6)
	assert.InDelta(t, 500, p.IterationsBy(10*time.Second), 1e-6)
	// plateau
	assert.InDelta(t, 1000, p.IterationsBy(15*time.Second), 1e-6)
	assert.InDelta(t, 1500, p.IterationsBy(20*time.Second), 1e-6)
	// ramp down
	assert.InDelta(t, 2000, p.IterationsBy(30*time.Second), 1e-6)
	assert.InDelta(t, 2000, p.IterationsBy(time.Minute), 1e-6)
}

func TestProfileTimeUnit(t *testing.T) {
	p := Profile{StartRate: 60, TimeUnit: time.Minute, Stages: []Stage{{Duration: time.Minute, Target: 60}}}
	assert.InDelta(t, 60, p.IterationsBy(time.Minute), 1e-6)
	assert.InDelta(t, 60, p.RateAt(30*time.Second), 1e-9)
}

func TestProfileRateAndStage(t *testing.T) {
	p := Profile{
		StartRate: 10,
		Stages: []Stage{
			{Duration: 10 * time.Second, Target: 20},
			{Duration: 0, Target: 50},
			{Duration: 10 * time.Second, Target: 50},
		},
	}
	assert.InDelta(t, 15, p.RateAt(5*time.Second), 1e-9)
	assert.InDelta(t, 50, p.RateAt(12*time.Second), 1e-9)
	assert.Equal(t, 0, p.StageAt(5*time.Second))
	assert.Equal(t, 2, p.StageAt(10*time.Second))
	assert.Equal(t, 2, p.StageAt(time.Hour))
	assert.Equal(t, 20*time.Second, p.Duration())
	// the zero length stage jumps straight to 50
	assert.InDelta(t, 150+500, p.IterationsBy(20*time.Second), 1e-6)
}

func TestDefaultProfile(t *testing.T) {
	p := DefaultProfile()
	require.NoError(t, p.Validate())
	assert.Len(t, p.Stages, 10)
	assert.Equal(t, 17*time.Minute+30*time.Second, p.Duration())
	assert.Equal(t, 1000.0, p.Stages[9].Target)
}

func TestProfileValidate(t *testing.T) {
	assert.ErrorIs(t, Profile{}.Validate(), ErrConfiguration)
	assert.ErrorIs(t, Profile{Stages: []Stage{{Duration: 0, Target: 1}}}.Validate(), ErrConfiguration)
	assert.ErrorIs(t, Profile{Stages: []Stage{{Duration: time.Second, Target: -1}}}.Validate(), ErrConfiguration)
	assert.ErrorIs(t, Profile{StartRate: -1, Stages: []Stage{{Duration: time.Second}}}.Validate(), ErrConfiguration)
}

func okIteration(calls *int64) Iteration {
	return func(ctx context.Context) (Outcome, error) {
		atomic.AddInt64(calls, 1)
		return Outcome{
			Operation: ModeGet,
			Status:    200,
			Class:     Success,
			Check:     true,
			Bytes:     100,
			Latency:   obmark.Latency{FirstByte: time.Millisecond, LastByte: 2 * time.Millisecond},
		}, nil
	}
}

func TestRampingArrivalRateStartsScheduledIterations(t *testing.T) {
	var calls int64
	metrics := NewMetrics()
	exec := &RampingArrivalRate{
		Profile: Profile{
			StartRate: 0,
			TimeUnit:  time.Second,
			Stages: []Stage{
				{Duration: 300 * time.Millisecond, Target: 200},
				{Duration: 200 * time.Millisecond, Target: 200},
			},
		},
		MaxVUs:       100,
		TickInterval: 5 * time.Millisecond,
		Metrics:      metrics,
	}

	summary, err := exec.Run(context.Background(), okIteration(&calls))
	require.NoError(t, err)

	// 0.3s * 200/2 + 0.2s * 200
	assert.Equal(t, int64(70), atomic.LoadInt64(&calls))
	assert.Equal(t, int64(70), summary.Iterations)
	assert.Equal(t, int64(0), summary.DroppedIterations)
	assert.Equal(t, int64(70), summary.ChecksPassed)
	assert.Equal(t, int64(70), summary.ClassCount(Success))
	assert.Equal(t, int64(7000), summary.TotalBytes)
	assert.InDelta(t, 2.0, summary.RequestDuration["p95"], 1e-9)
	require.Len(t, summary.Records, 2)
	assert.Equal(t, int64(70), summary.Records[0].ObjectsCount+summary.Records[1].ObjectsCount)
	assert.Equal(t, 200.0, summary.Records[1].TargetRate)
	assert.Equal(t, 70.0, testutil.ToFloat64(metrics.iterations))
}

func TestRampingArrivalRateDropsWhenSaturated(t *testing.T) {
	release := make(chan struct{})
	var calls int64
	exec := &RampingArrivalRate{
		Profile: Profile{
			StartRate: 100,
			TimeUnit:  time.Second,
			Stages:    []Stage{{Duration: 200 * time.Millisecond, Target: 100}},
		},
		MaxVUs:       2,
		TickInterval: 5 * time.Millisecond,
		GracefulStop: time.Second,
	}

	go func() {
		time.Sleep(300 * time.Millisecond)
		close(release)
	}()
	summary, err := exec.Run(context.Background(), func(ctx context.Context) (Outcome, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return Outcome{Status: 200, Class: Success, Check: true}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
	assert.Equal(t, int64(2), summary.Iterations)
	assert.Equal(t, int64(18), summary.DroppedIterations)
}

func TestRampingArrivalRateStopsOnFatalError(t *testing.T) {
	exec := &RampingArrivalRate{
		Profile:      Profile{StartRate: 100, Stages: []Stage{{Duration: 10 * time.Second, Target: 100}}},
		TickInterval: 5 * time.Millisecond,
	}

	start := time.Now()
	_, err := exec.Run(context.Background(), func(ctx context.Context) (Outcome, error) {
		return Outcome{}, configErrorf("object pool is empty")
	})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRampingArrivalRateAbortsOnCriticalErrors(t *testing.T) {
	exec := &RampingArrivalRate{
		Profile:           Profile{StartRate: 200, Stages: []Stage{{Duration: 10 * time.Second, Target: 200}}},
		TickInterval:      5 * time.Millisecond,
		MaxCriticalErrors: 1,
		AbortEvalDelay:    100 * time.Millisecond,
	}

	start := time.Now()
	summary, err := exec.Run(context.Background(), func(ctx context.Context) (Outcome, error) {
		return Outcome{Status: 403, Class: CriticalError}, nil
	})
	assert.ErrorIs(t, err, ErrThresholdAbort)
	require.NotNil(t, summary)
	assert.True(t, summary.Aborted)
	assert.Greater(t, summary.ClassCount(CriticalError), int64(0))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRampingArrivalRateRecordsCriticalErrorsWithoutLimit(t *testing.T) {
	var calls int64
	exec := &RampingArrivalRate{
		Profile:        Profile{StartRate: 200, TimeUnit: time.Second, Stages: []Stage{{Duration: 300 * time.Millisecond, Target: 200}}},
		MaxVUs:         100,
		TickInterval:   5 * time.Millisecond,
		AbortEvalDelay: 10 * time.Millisecond,
	}

	summary, err := exec.Run(context.Background(), func(ctx context.Context) (Outcome, error) {
		// one stale key in the pool
		if atomic.AddInt64(&calls, 1) == 5 {
			return Outcome{Operation: ModeGet, Status: 404, Class: CriticalError}, nil
		}
		return Outcome{Operation: ModeGet, Status: 200, Class: Success, Check: true}, nil
	})
	require.NoError(t, err)
	assert.False(t, summary.Aborted)
	assert.Equal(t, int64(60), summary.Iterations)
	assert.Equal(t, int64(1), summary.ClassCount(CriticalError))

	results := DefaultThresholds().Evaluate(summary)
	assert.False(t, AllPassed(results))
}

func TestRampingArrivalRateGracefulStopInterrupts(t *testing.T) {
	exec := &RampingArrivalRate{
		Profile:      Profile{StartRate: 50, Stages: []Stage{{Duration: 100 * time.Millisecond, Target: 50}}},
		TickInterval: 5 * time.Millisecond,
		GracefulStop: 50 * time.Millisecond,
	}

	summary, err := exec.Run(context.Background(), func(ctx context.Context) (Outcome, error) {
		<-ctx.Done()
		return Outcome{Err: ctx.Err()}, nil
	})
	require.NoError(t, err)
	// interrupted iterations are not measurements
	assert.Equal(t, int64(0), summary.Iterations)
}

func TestRampingArrivalRateCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var calls int64
	exec := &RampingArrivalRate{
		Profile:      Profile{StartRate: 10, Stages: []Stage{{Duration: time.Minute, Target: 10}}},
		TickInterval: 5 * time.Millisecond,
	}

	summary, err := exec.Run(ctx, okIteration(&calls))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, summary)
}
