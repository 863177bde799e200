package obmark

import (
	"time"

	"github.com/tcnksm/go-httpstat"
	"go.uber.org/zap/zapcore"
)

// Represents the duration from making different parts of an operation including the time to first byte (TTFB) and the time to last byte (TTLB).
type Latency struct {
	FirstByte        time.Duration
	LastByte         time.Duration
	DNSLookup        time.Duration
	TCPConnection    time.Duration
	TLSHandshake     time.Duration
	ServerProcessing time.Duration
}

// Unassigned is the part of the last byte latency not covered by the connection phases.
func (lat Latency) Unassigned() time.Duration {
	rest := lat.LastByte - lat.DNSLookup - lat.TCPConnection - lat.TLSHandshake - lat.ServerProcessing
	if rest < 0 {
		return 0
	}
	return rest
}

func (lat Latency) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddDuration("dns", lat.DNSLookup)
	enc.AddDuration("tcp", lat.TCPConnection)
	enc.AddDuration("tls", lat.TLSHandshake)
	enc.AddDuration("server", lat.ServerProcessing)
	enc.AddDuration("ttfb", lat.FirstByte)
	enc.AddDuration("ttlb", lat.LastByte)
	return nil
}

func latency(result *httpstat.Result) Latency {
	return Latency{
		DNSLookup:        result.DNSLookup,
		TCPConnection:    result.TCPConnection,
		TLSHandshake:     result.TLSHandshake,
		ServerProcessing: result.ServerProcessing,
	}
}
