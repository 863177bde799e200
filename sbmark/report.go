package sbmark

import (
	"time"
)

// Summary is the aggregated result of a run.
type Summary struct {
	TestID          string    `json:"test_id"`
	Mode            Mode      `json:"mode"`
	Endpoint        string    `json:"endpoint"`
	Buckets         []string  `json:"buckets"`
	ObjectSizeBytes uint64    `json:"object_size_bytes,omitempty"`
	InitialObjects  int       `json:"initial_objects"`
	Start           time.Time `json:"start"`
	DurationSeconds float64   `json:"duration_secs"`

	Iterations        int64            `json:"iterations"`
	DroppedIterations int64            `json:"dropped_iterations"`
	ChecksPassed      int64            `json:"checks_passed"`
	ChecksFailed      int64            `json:"checks_failed"`
	Classes           map[string]int64 `json:"classes"`
	Statuses          map[int]int64    `json:"statuses"`
	TotalBytes        int64            `json:"total_bytes"`

	// RequestDuration is the time to last byte of every request in ms.
	RequestDuration map[string]float64 `json:"http_req_duration"`

	// one record per executor stage
	Records []Record `json:"records"`

	Thresholds []ThresholdResult `json:"thresholds,omitempty"`
	Aborted    bool              `json:"aborted,omitempty"`
}

// ClassCount returns how many iterations ended in class c.
func (s *Summary) ClassCount(c ErrorClass) int64 {
	return s.Classes[c.String()]
}

// FailedRate is the share of iterations whose status check failed.
func (s *Summary) FailedRate() float64 {
	if s.Iterations == 0 {
		return 0
	}
	return float64(s.ChecksFailed) / float64(s.Iterations)
}

// ClassRate is the share of iterations that ended in class c.
func (s *Summary) ClassRate(c ErrorClass) float64 {
	if s.Iterations == 0 {
		return 0
	}
	return float64(s.ClassCount(c)) / float64(s.Iterations)
}

type Record struct {
	Operation        string             `json:"operation"` // GET, PUT
	Stage            int                `json:"stage"`
	TargetRate       float64            `json:"target_rate"`
	ObjectsCount     int64              `json:"objects_count"`
	Failed           int64              `json:"failed"`
	TotalBytes       uint64             `json:"total_bytes"`
	DurationSeconds  float64            `json:"duration_secs"`
	TimeToFirstByte  map[string]float64 `json:"ttfb_latency"`
	TimeToLastByte   map[string]float64 `json:"ttlb_latency"`
	DNSLookup        map[string]float64 `json:"dns_lookup"`
	TCPConnection    map[string]float64 `json:"tcp_connection"`
	TLSHandshake     map[string]float64 `json:"tls_handshake"`
	ServerProcessing map[string]float64 `json:"server_processing"`
	Unassigned       map[string]float64 `json:"unassigned"`
}

func (r *Record) ThroughputMBps() float64 {
	return r.ThroughputBps() / 1024 / 1024
}

func (r *Record) ThroughputBps() float64 {
	if r.DurationSeconds <= 0 {
		return 0
	}
	return float64(r.TotalBytes) / r.DurationSeconds
}

func (r *Record) RequestsPerSecond() float64 {
	if r.DurationSeconds <= 0 {
		return 0
	}
	return float64(r.ObjectsCount+r.Failed) / r.DurationSeconds
}

// recordBuilder collects the outcomes of one stage.
type recordBuilder struct {
	stage      int
	targetRate float64
	duration   time.Duration
	count      int64
	failed     int64
	bytes      uint64
	operation  Mode

	firstByte        *Trend
	lastByte         *Trend
	dnsLookup        *Trend
	tcpConnection    *Trend
	tlsHandshake     *Trend
	serverProcessing *Trend
	unassigned       *Trend
}

func newRecordBuilder(stage int, targetRate float64, duration time.Duration, reservoir int) *recordBuilder {
	return &recordBuilder{
		stage:            stage,
		targetRate:       targetRate,
		duration:         duration,
		firstByte:        NewTrend(reservoir),
		lastByte:         NewTrend(reservoir),
		dnsLookup:        NewTrend(reservoir),
		tcpConnection:    NewTrend(reservoir),
		tlsHandshake:     NewTrend(reservoir),
		serverProcessing: NewTrend(reservoir),
		unassigned:       NewTrend(reservoir),
	}
}

func (b *recordBuilder) add(o Outcome) {
	b.operation = o.Operation
	// only take latencies from successful samples
	if !o.Check {
		b.failed++
		return
	}
	b.count++
	b.bytes += uint64(o.Bytes)
	lat := o.Latency
	b.firstByte.AddDuration(lat.FirstByte)
	b.lastByte.AddDuration(lat.LastByte)
	b.dnsLookup.AddDuration(lat.DNSLookup)
	b.tcpConnection.AddDuration(lat.TCPConnection)
	b.tlsHandshake.AddDuration(lat.TLSHandshake)
	b.serverProcessing.AddDuration(lat.ServerProcessing)
	b.unassigned.AddDuration(lat.Unassigned())
}

func (b *recordBuilder) record() Record {
	return Record{
		Operation:        string(b.operation),
		Stage:            b.stage,
		TargetRate:       b.targetRate,
		ObjectsCount:     b.count,
		Failed:           b.failed,
		TotalBytes:       b.bytes,
		DurationSeconds:  b.duration.Seconds(),
		TimeToFirstByte:  b.firstByte.Stats(),
		TimeToLastByte:   b.lastByte.Stats(),
		DNSLookup:        b.dnsLookup.Stats(),
		TCPConnection:    b.tcpConnection.Stats(),
		TLSHandshake:     b.tlsHandshake.Stats(),
		ServerProcessing: b.serverProcessing.Stats(),
		Unassigned:       b.unassigned.Stats(),
	}
}
