package sbmark

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

var csvHeader = []string{
	"test_id", "operation", "stage", "target_rate", "requests", "failed", "req_per_sec", "throughput_mbps",
	"ttfb_avg", "ttfb_min", "ttfb_p50", "ttfb_p90", "ttfb_p95", "ttfb_p99", "ttfb_max",
	"ttlb_avg", "ttlb_min", "ttlb_p50", "ttlb_p90", "ttlb_p95", "ttlb_p99", "ttlb_max",
	"dns_avg", "tcp_avg", "tls_avg", "srv_avg", "rest_avg",
}

// ToCsv writes one row per stage record.
func ToCsv(summary *Summary) ([]byte, error) {
	// array of csv records used to upload the results
	csvRecords := [][]string{csvHeader}

	for _, record := range summary.Records {
		// add the results to the csv array
		csvRecords = append(csvRecords, []string{
			summary.TestID,
			record.Operation,
			fmt.Sprintf("%d", record.Stage),
			fmt.Sprintf("%.1f", record.TargetRate),
			fmt.Sprintf("%d", record.ObjectsCount+record.Failed),
			fmt.Sprintf("%d", record.Failed),
			fmt.Sprintf("%.1f", record.RequestsPerSecond()),
			fmt.Sprintf("%.3f", record.ThroughputMBps()),
			fmt.Sprintf("%.1f", record.TimeToFirstByte["avg"]),
			fmt.Sprintf("%.1f", record.TimeToFirstByte["min"]),
			fmt.Sprintf("%.1f", record.TimeToFirstByte["p50"]),
			fmt.Sprintf("%.1f", record.TimeToFirstByte["p90"]),
			fmt.Sprintf("%.1f", record.TimeToFirstByte["p95"]),
			fmt.Sprintf("%.1f", record.TimeToFirstByte["p99"]),
			fmt.Sprintf("%.1f", record.TimeToFirstByte["max"]),
			fmt.Sprintf("%.1f", record.TimeToLastByte["avg"]),
			fmt.Sprintf("%.1f", record.TimeToLastByte["min"]),
			fmt.Sprintf("%.1f", record.TimeToLastByte["p50"]),
			fmt.Sprintf("%.1f", record.TimeToLastByte["p90"]),
			fmt.Sprintf("%.1f", record.TimeToLastByte["p95"]),
			fmt.Sprintf("%.1f", record.TimeToLastByte["p99"]),
			fmt.Sprintf("%.1f", record.TimeToLastByte["max"]),
			fmt.Sprintf("%.1f", record.DNSLookup["avg"]),
			fmt.Sprintf("%.1f", record.TCPConnection["avg"]),
			fmt.Sprintf("%.1f", record.TLSHandshake["avg"]),
			fmt.Sprintf("%.1f", record.ServerProcessing["avg"]),
			fmt.Sprintf("%.1f", record.Unassigned["avg"]),
		})
	}

	b := &bytes.Buffer{}
	w := csv.NewWriter(b)
	if err := w.WriteAll(csvRecords); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
