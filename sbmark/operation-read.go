package sbmark

import (
	"context"

	"go.uber.org/zap"

	"github.com/lumafield/s3-load-benchmark/obmark"
)

type OperationRead struct {
	client obmark.ObjectClient
	pool   *ObjectPool
	pick   Picker
	logger *zap.Logger
}

func (op *OperationRead) Execute(ctx context.Context) (Outcome, error) {
	// a GET run without objects can't measure anything
	if op.pool.Len() == 0 {
		return Outcome{Operation: ModeGet}, configErrorf("object pool is empty, seed objects or provide an objects file")
	}

	// pick a random object from the pool
	ref := op.pool.Random(op.pick)

	// do the GetObject request, the body is drained and counted by the client
	resp, err := op.client.GetObject(ctx, ref.Bucket, ref.Key)
	o := outcome(ModeGet, ref, resp, err)

	// if a request fails, log the error and return the outcome
	if !o.Check {
		op.logger.Debug("get failed", zap.Object("outcome", o))
	}
	return o, nil
}
