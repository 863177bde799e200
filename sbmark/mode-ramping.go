package sbmark

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultGracefulStop   = 30 * time.Second
	DefaultAbortEvalDelay = 10 * time.Second
	DefaultMaxVUs         = 500000

	defaultTickInterval = 10 * time.Millisecond
)

// Scheduler drives iterations and aggregates their outcomes.
type Scheduler interface {
	Run(ctx context.Context, iteration Iteration) (*Summary, error)
}

// Stage ramps the arrival rate linearly to Target over Duration.
type Stage struct {
	Duration time.Duration
	Target   float64
}

// Profile describes the arrival rate over time. Rates are iterations per TimeUnit.
type Profile struct {
	StartRate float64
	TimeUnit  time.Duration
	Stages    []Stage
}

// DefaultProfile climbs to 100, 250, 500, 750 and finally 1000 requests per
// second. Each level is reached over 30 seconds and held for three minutes.
func DefaultProfile() Profile {
	p := Profile{StartRate: 1, TimeUnit: time.Second}
	for _, target := range []float64{100, 250, 500, 750, 1000} {
		p.Stages = append(p.Stages,
			Stage{Duration: 30 * time.Second, Target: target},
			Stage{Duration: 3 * time.Minute, Target: target},
		)
	}
	return p
}

func (p Profile) Validate() error {
	if len(p.Stages) == 0 {
		return configErrorf("profile has no stages")
	}
	if p.StartRate < 0 {
		return configErrorf("start rate %v is negative", p.StartRate)
	}
	if p.TimeUnit < 0 {
		return configErrorf("time unit %s is negative", p.TimeUnit)
	}
	for i, s := range p.Stages {
		if s.Duration < 0 {
			return configErrorf("stage %d has a negative duration", i)
		}
		if s.Target < 0 {
			return configErrorf("stage %d has a negative target", i)
		}
	}
	if p.Duration() <= 0 {
		return configErrorf("profile has a total duration of zero")
	}
	return nil
}

func (p Profile) Duration() time.Duration {
	var total time.Duration
	for _, s := range p.Stages {
		total += s.Duration
	}
	return total
}

func (p Profile) unitSeconds() float64 {
	if p.TimeUnit <= 0 {
		return 1
	}
	return p.TimeUnit.Seconds()
}

// StageAt returns the index of the stage running at elapsed. Past the end it is the last stage.
func (p Profile) StageAt(elapsed time.Duration) int {
	var end time.Duration
	for i, s := range p.Stages {
		end += s.Duration
		if elapsed < end {
			return i
		}
	}
	return len(p.Stages) - 1
}

// RateAt returns the arrival rate at elapsed in iterations per TimeUnit.
func (p Profile) RateAt(elapsed time.Duration) float64 {
	from := p.StartRate
	var start time.Duration
	for _, s := range p.Stages {
		if elapsed < start+s.Duration {
			frac := float64(elapsed-start) / float64(s.Duration)
			return from + (s.Target-from)*frac
		}
		start += s.Duration
		from = s.Target
	}
	return from
}

// IterationsBy is the number of iterations that should have started by
// elapsed: the integral of the piecewise linear rate.
func (p Profile) IterationsBy(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	unit := p.unitSeconds()
	from := p.StartRate
	total := 0.0
	var start time.Duration
	for _, s := range p.Stages {
		if s.Duration == 0 {
			from = s.Target
			continue
		}
		t := elapsed - start
		if t <= 0 {
			break
		}
		if t > s.Duration {
			t = s.Duration
		}
		secs := t.Seconds()
		d := s.Duration.Seconds()
		// area under the ramp from the stage start up to t
		total += (from*secs + (s.Target-from)*secs*secs/(2*d)) / unit
		start += s.Duration
		from = s.Target
	}
	return total
}

// stage boundaries relative to the run start
func (p Profile) stageWindow(i int) (time.Duration, time.Duration) {
	var start time.Duration
	for j := 0; j < i; j++ {
		start += p.Stages[j].Duration
	}
	return start, start + p.Stages[i].Duration
}

// RampingArrivalRate starts iterations at the rate given by Profile,
// independent of how long they take. When MaxVUs iterations are in flight new
// ones are dropped, never queued.
type RampingArrivalRate struct {
	Profile Profile
	MaxVUs  int

	// GracefulStop is how long in-flight iterations may finish after the last stage.
	GracefulStop time.Duration

	// MaxCriticalErrors stops the run once this many critical errors were seen,
	// checked only after AbortEvalDelay. Zero disables the check.
	MaxCriticalErrors int64
	AbortEvalDelay    time.Duration

	TickInterval  time.Duration
	ReservoirSize int

	Metrics *Metrics
	Logger  *zap.Logger
}

type stagedOutcome struct {
	stage   int
	outcome Outcome
}

func (e *RampingArrivalRate) Run(ctx context.Context, iteration Iteration) (*Summary, error) {
	if err := e.Profile.Validate(); err != nil {
		return nil, err
	}
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxVUs := e.MaxVUs
	if maxVUs <= 0 {
		maxVUs = DefaultMaxVUs
	}
	tick := e.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}
	evalDelay := e.AbortEvalDelay
	if evalDelay <= 0 {
		evalDelay = DefaultAbortEvalDelay
	}
	gracefulStop := e.GracefulStop
	if gracefulStop <= 0 {
		gracefulStop = DefaultGracefulStop
	}
	total := e.Profile.Duration()

	// iterations get their own context so they can outlive the dispatcher during the graceful stop
	iterCtx, cancelIterations := context.WithCancel(ctx)
	defer cancelIterations()

	results := make(chan stagedOutcome, 1024)
	fatal := make(chan error, 1)
	sem := make(chan struct{}, maxVUs)
	var wg sync.WaitGroup
	var critical int64

	agg := newAggregator(e.Profile, e.ReservoirSize, e.Metrics)
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		for r := range results {
			if agg.add(r) == CriticalError {
				atomic.AddInt64(&critical, 1)
			}
		}
	}()

	logger.Info("starting ramping arrival rate",
		zap.Duration("duration", total),
		zap.Int("stages", len(e.Profile.Stages)),
		zap.Int("max_vus", maxVUs))

	start := time.Now()
	ticker := time.NewTicker(tick)
	var started, dropped int64
	var runErr error
	lastStage := -1

dispatch:
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break dispatch
		case err := <-fatal:
			runErr = err
			break dispatch
		case now := <-ticker.C:
			elapsed := now.Sub(start)
			if elapsed > total {
				elapsed = total
			}

			if e.MaxCriticalErrors > 0 && elapsed >= evalDelay && atomic.LoadInt64(&critical) >= e.MaxCriticalErrors {
				runErr = errors.Wrapf(ErrThresholdAbort, "%d critical errors", atomic.LoadInt64(&critical))
				break dispatch
			}

			stage := e.Profile.StageAt(elapsed)
			if stage != lastStage {
				logger.Info("stage started",
					zap.Int("stage", stage),
					zap.Float64("target", e.Profile.Stages[stage].Target),
					zap.Duration("duration", e.Profile.Stages[stage].Duration))
				lastStage = stage
			}

			due := int64(math.Floor(e.Profile.IterationsBy(elapsed) + 1e-9))
			for ; started < due; started++ {
				select {
				case sem <- struct{}{}:
					wg.Add(1)
					go func(stage int) {
						defer wg.Done()
						defer func() { <-sem }()
						o, err := iteration(iterCtx)
						if err != nil {
							select {
							case fatal <- err:
							default:
							}
							return
						}
						// interrupted by the stop, not a measurement
						if iterCtx.Err() != nil && o.Status == 0 {
							return
						}
						results <- stagedOutcome{stage: stage, outcome: o}
					}(stage)
				default:
					dropped++
					e.Metrics.IterationDropped()
				}
			}

			if elapsed >= total {
				break dispatch
			}
		}
	}
	ticker.Stop()

	if runErr == nil {
		// let in-flight iterations finish, up to the graceful stop
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(gracefulStop):
			logger.Warn("graceful stop expired, interrupting iterations", zap.Duration("graceful_stop", gracefulStop))
		}
	}
	cancelIterations()
	wg.Wait()
	close(results)
	<-aggDone

	// a fatal error may have raced with the end of the dispatch loop
	if runErr == nil {
		select {
		case runErr = <-fatal:
		default:
		}
	}

	summary := agg.summary(start, time.Since(start), dropped)
	if errors.Is(runErr, ErrThresholdAbort) {
		summary.Aborted = true
	}
	logger.Info("run finished",
		zap.Int64("iterations", summary.Iterations),
		zap.Int64("dropped", dropped),
		zap.Float64("duration_secs", summary.DurationSeconds),
		zap.Error(runErr))
	return summary, runErr
}

// aggregator is only used from the collecting goroutine.
type aggregator struct {
	profile   Profile
	reservoir int
	metrics   *Metrics
	stages    []*recordBuilder
	duration  *Trend
	totals    Summary
}

func newAggregator(p Profile, reservoir int, metrics *Metrics) *aggregator {
	a := &aggregator{
		profile:   p,
		reservoir: reservoir,
		metrics:   metrics,
		stages:    make([]*recordBuilder, len(p.Stages)),
		duration:  NewTrend(reservoir),
		totals: Summary{
			Classes:  make(map[string]int64),
			Statuses: make(map[int]int64),
		},
	}
	for i, s := range p.Stages {
		a.stages[i] = newRecordBuilder(i, s.Target, s.Duration, reservoir)
	}
	return a
}

func (a *aggregator) add(r stagedOutcome) ErrorClass {
	o := r.outcome
	s := &a.totals
	s.Iterations++
	if o.Check {
		s.ChecksPassed++
	} else {
		s.ChecksFailed++
	}
	s.Classes[o.Class.String()]++
	s.Statuses[o.Status]++
	s.TotalBytes += o.Bytes
	if o.Status != 0 {
		a.duration.AddDuration(o.Latency.LastByte)
	}
	if r.stage >= 0 && r.stage < len(a.stages) {
		a.stages[r.stage].add(o)
	}
	a.metrics.Observe(o)
	return o.Class
}

func (a *aggregator) summary(start time.Time, elapsed time.Duration, dropped int64) *Summary {
	s := a.totals
	s.Start = start.UTC()
	s.DurationSeconds = elapsed.Seconds()
	s.DroppedIterations = dropped
	s.RequestDuration = a.duration.Stats()

	for i, b := range a.stages {
		stageStart, stageEnd := a.profile.stageWindow(i)
		if stageStart > elapsed {
			break
		}
		if stageEnd > elapsed {
			b.duration = elapsed - stageStart
		}
		s.Records = append(s.Records, b.record())
	}
	return &s
}
