package sbmark

import (
	"context"

	"go.uber.org/zap"

	"github.com/lumafield/s3-load-benchmark/obmark"
)

type OperationWrite struct {
	client  obmark.ObjectClient
	buckets []string
	payload *Payload
	keys    KeyGenerator
	pick    Picker
	logger  *zap.Logger
}

func (op *OperationWrite) Execute(ctx context.Context) (Outcome, error) {
	if err := op.payload.ValidateForPut(); err != nil {
		return Outcome{Operation: ModePut}, err
	}
	if len(op.buckets) == 0 {
		return Outcome{Operation: ModePut}, configErrorf("no buckets to write to")
	}

	// the target is fully determined before the request goes out
	ref := ObjectRef{
		Bucket: op.buckets[op.pick(len(op.buckets))],
		Key:    op.keys.NewKey(BenchKeyPrefix),
	}
	body := op.payload.Bytes()

	// do a PutObject request with the shared payload
	resp, err := op.client.PutObject(ctx, ref.Bucket, ref.Key, body)
	o := outcome(ModePut, ref, resp, err)
	// the response body of a PUT is empty, count what was stored
	if o.Check {
		o.Bytes = int64(len(body))
	}

	// if a request fails, log the error and return the outcome
	if !o.Check {
		op.logger.Debug("put failed", zap.Object("outcome", o), zap.String("size", ByteFormat(float64(len(body)))))
	}
	return o, nil
}
