package sbmark

import (
	"fmt"
	"io"
	"strings"
)

const recordTableRule = "+-------+----------+----------+------------+------------------------------------------+------------------------------------------+----------------------------------+"

// PrintSummary writes the human readable report of a run.
func PrintSummary(w io.Writer, s *Summary) {
	fmt.Fprint(w, "\n--- BENCHMARK - Ramping arrival rate -----------------------------------------------------------------------------------------\n\n")
	fmt.Fprintf(w, "Operation '%s' against %s (%s)\n", s.Mode, s.Endpoint, strings.Join(s.Buckets, ", "))
	if s.Mode == ModePut {
		fmt.Fprintf(w, "Object size: %s\n", ByteFormat(float64(s.ObjectSizeBytes)))
	} else {
		fmt.Fprintf(w, "Object pool: %d objects\n", s.InitialObjects)
	}
	fmt.Fprintf(w, "Duration: %.1fs, iterations: %d, dropped: %d\n\n", s.DurationSeconds, s.Iterations, s.DroppedIterations)

	// prints the table header for the stage records
	fmt.Fprintln(w, "                                                    +------------------------------------------+------------------------------------------+----------------------------------+")
	fmt.Fprintln(w, "                                                    |        Time to First Byte (ms)           |         Time to Last Byte (ms)           | Latency Distribution (avg in ms) |")
	fmt.Fprintln(w, recordTableRule)
	fmt.Fprintln(w, "| Stage |   Target |    Req/s |     Failed |  avg   min   p50   p90   p95   p99   max |  avg   min   p50   p90   p95   p99   max |    dns   tcp   tls   srv   rest  |")
	fmt.Fprintln(w, recordTableRule)
	for _, r := range s.Records {
		fmt.Fprintf(w, "| %5d | %8.0f | %8.1f | %10d |%5.0f %5.0f %5.0f %5.0f %5.0f %5.0f %5.0f |%5.0f %5.0f %5.0f %5.0f %5.0f %5.0f %5.0f |%7.0f %5.0f %5.0f %5.0f %6.0f  |\n",
			r.Stage, r.TargetRate, r.RequestsPerSecond(), r.Failed,
			r.TimeToFirstByte["avg"], r.TimeToFirstByte["min"], r.TimeToFirstByte["p50"], r.TimeToFirstByte["p90"], r.TimeToFirstByte["p95"], r.TimeToFirstByte["p99"], r.TimeToFirstByte["max"],
			r.TimeToLastByte["avg"], r.TimeToLastByte["min"], r.TimeToLastByte["p50"], r.TimeToLastByte["p90"], r.TimeToLastByte["p95"], r.TimeToLastByte["p99"], r.TimeToLastByte["max"],
			r.DNSLookup["avg"], r.TCPConnection["avg"], r.TLSHandshake["avg"], r.ServerProcessing["avg"], r.Unassigned["avg"])
	}
	fmt.Fprint(w, recordTableRule+"\n\n")

	d := s.RequestDuration
	fmt.Fprintf(w, "http_req_duration: avg=%.1fms min=%.1fms med=%.1fms max=%.1fms p(90)=%.1fms p(95)=%.1fms p(99)=%.1fms p(99.9)=%.1fms\n",
		d["avg"], d["min"], d["p50"], d["max"], d["p90"], d["p95"], d["p99"], d["p99.9"])
	fmt.Fprintf(w, "checks: %d passed, %d failed (%.2f%% failed)\n", s.ChecksPassed, s.ChecksFailed, s.FailedRate()*100)
	fmt.Fprintf(w, "errors: critical=%d client=%d server=%d unclassified=%d\n",
		s.ClassCount(CriticalError), s.ClassCount(ClientError), s.ClassCount(ServerError), s.ClassCount(Unclassified))

	if len(s.Thresholds) > 0 {
		fmt.Fprintln(w, "\nthresholds:")
		for _, t := range s.Thresholds {
			fmt.Fprintf(w, "  %s\n", t)
		}
	}
	if s.Aborted {
		fmt.Fprintln(w, "\nrun aborted by the critical error threshold")
	}
	fmt.Fprintln(w)
}
