package sbmark

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lumafield/s3-load-benchmark/obmark"
)

// Outcome is the result of one iteration. A failed request is an Outcome, not an error.
type Outcome struct {
	Operation Mode
	Bucket    string
	Key       string
	Status    int
	Class     ErrorClass
	// Check is the "status is 200" check, it passes for every 2xx status
	Check   bool
	Latency obmark.Latency
	Bytes   int64
	Err     error
}

func (o Outcome) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("operation", string(o.Operation))
	enc.AddString("bucket", o.Bucket)
	enc.AddString("key", o.Key)
	enc.AddInt("status", o.Status)
	enc.AddString("class", o.Class.String())
	enc.AddInt64("bytes", o.Bytes)
	if o.Err != nil {
		enc.AddString("error", o.Err.Error())
	}
	return enc.AddObject("latency", o.Latency)
}

// Operation runs a single measured request. The error return is reserved for
// fatal setup problems that must stop the whole run.
type Operation interface {
	Execute(ctx context.Context) (Outcome, error)
}

// Iteration is what the executor schedules.
type Iteration func(ctx context.Context) (Outcome, error)

func (op Iteration) Execute(ctx context.Context) (Outcome, error) {
	return op(ctx)
}

// Picker returns a uniformly distributed value in [0, n).
type Picker func(n int) int

// NewPicker returns a Picker that is safe for concurrent use. Concurrent
// callers draw from separate sources derived from seed.
func NewPicker(seed int64) Picker {
	next := seed
	sources := &sync.Pool{New: func() interface{} {
		return rand.New(rand.NewSource(atomic.AddInt64(&next, 1)))
	}}
	return func(n int) int {
		rnd := sources.Get().(*rand.Rand)
		v := rnd.Intn(n)
		sources.Put(rnd)
		return v
	}
}

type OperationConfig struct {
	Client  obmark.ObjectClient
	Pool    *ObjectPool
	Buckets []string
	Payload *Payload
	Keys    KeyGenerator
	Picker  Picker
	Logger  *zap.Logger
}

// NewOperation builds the operation for a static mode.
func NewOperation(mode Mode, cfg OperationConfig) (Operation, error) {
	if cfg.Picker == nil {
		cfg.Picker = NewPicker(time.Now().UnixNano())
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	switch mode {
	case ModeGet:
		return &OperationRead{
			client: cfg.Client,
			pool:   cfg.Pool,
			pick:   cfg.Picker,
			logger: cfg.Logger,
		}, nil
	case ModePut:
		keys := cfg.Keys
		if keys == nil {
			keys = UUIDKeys{}
		}
		return &OperationWrite{
			client:  cfg.Client,
			buckets: cfg.Buckets,
			payload: cfg.Payload,
			keys:    keys,
			pick:    cfg.Picker,
			logger:  cfg.Logger,
		}, nil
	}
	return nil, configErrorf("unknown mode %q", mode)
}

// outcome turns a client response into an Outcome.
func outcome(mode Mode, ref ObjectRef, resp *obmark.Response, err error) Outcome {
	o := Outcome{
		Operation: mode,
		Bucket:    ref.Bucket,
		Key:       ref.Key,
		Err:       err,
	}
	if resp != nil {
		o.Status = resp.Status
		o.Latency = resp.Latency
		o.Bytes = resp.Bytes
	}
	o.Class = Classify(o.Status)
	o.Check = o.Class == Success
	return o
}
