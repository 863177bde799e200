package sbmark

import (
	"fmt"
	"time"
)

// ExitCodeThresholds is the process exit code when a threshold failed.
const ExitCodeThresholds = 99

// Thresholds are pass/fail criteria evaluated on the final summary.
// A zero field disables its check.
type Thresholds struct {
	// MaxFailedRate is the upper bound (exclusive) of the failed check rate.
	MaxFailedRate float64
	P95           time.Duration
	P99           time.Duration
	// MaxClientErrorRate is the upper bound (exclusive) of the 407-499 share.
	MaxClientErrorRate float64
	// MaxCriticalErrors is the upper bound (exclusive) of 400-406 responses.
	MaxCriticalErrors int64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxFailedRate:      0.10,
		P95:                100 * time.Millisecond,
		P99:                1000 * time.Millisecond,
		MaxClientErrorRate: 0.01,
		MaxCriticalErrors:  1,
	}
}

type ThresholdResult struct {
	Name   string  `json:"name"`
	Limit  string  `json:"limit"`
	Value  float64 `json:"value"`
	Passed bool    `json:"passed"`
}

func (r ThresholdResult) String() string {
	status := "ok"
	if !r.Passed {
		status = "FAILED"
	}
	return fmt.Sprintf("%-28s %-10s %12.4f  %s", r.Name, r.Limit, r.Value, status)
}

// Evaluate checks every enabled threshold against the summary.
func (t Thresholds) Evaluate(s *Summary) []ThresholdResult {
	var results []ThresholdResult
	if t.MaxFailedRate > 0 {
		v := s.FailedRate()
		results = append(results, ThresholdResult{
			Name:   "http_req_failed",
			Limit:  fmt.Sprintf("rate<%g", t.MaxFailedRate),
			Value:  v,
			Passed: v < t.MaxFailedRate,
		})
	}
	if t.P95 > 0 {
		v := s.RequestDuration["p95"]
		results = append(results, durationThreshold("http_req_duration p95", v, t.P95))
	}
	if t.P99 > 0 {
		v := s.RequestDuration["p99"]
		results = append(results, durationThreshold("http_req_duration p99", v, t.P99))
	}
	if t.MaxClientErrorRate > 0 {
		v := s.ClassRate(ClientError)
		results = append(results, ThresholdResult{
			Name:   "http_client_errors",
			Limit:  fmt.Sprintf("rate<%g", t.MaxClientErrorRate),
			Value:  v,
			Passed: v < t.MaxClientErrorRate,
		})
	}
	if t.MaxCriticalErrors > 0 {
		v := s.ClassCount(CriticalError)
		results = append(results, ThresholdResult{
			Name:   "http_critical_errors",
			Limit:  fmt.Sprintf("count<%d", t.MaxCriticalErrors),
			Value:  float64(v),
			Passed: v < t.MaxCriticalErrors,
		})
	}
	return results
}

// durations are compared in milliseconds, like the summary
func durationThreshold(name string, ms float64, limit time.Duration) ThresholdResult {
	limitMs := float64(limit) / float64(time.Millisecond)
	return ThresholdResult{
		Name:   name,
		Limit:  fmt.Sprintf("<%s", limit),
		Value:  ms,
		Passed: ms < limitMs,
	}
}

func AllPassed(results []ThresholdResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
