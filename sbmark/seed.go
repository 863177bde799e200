package sbmark

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lumafield/s3-load-benchmark/obmark"
)

// DefaultBatchPerHost is how many seed uploads are in flight at once.
const DefaultBatchPerHost = 100

// Seeder uploads the initial objects before the measurement starts.
type Seeder struct {
	Client  obmark.ObjectClient
	Payload *Payload
	Keys    KeyGenerator
	Metrics *Metrics
	Logger  *zap.Logger
	Ticker  Ticker

	// BatchPerHost bounds the concurrent uploads. Defaults to DefaultBatchPerHost.
	BatchPerHost int

	// RateLimit caps uploads per second, zero means unlimited.
	RateLimit float64
}

// Seed creates count objects spread round-robin over buckets. The returned refs
// are in creation order, i.e. ref i lives in buckets[i % len(buckets)].
func (s *Seeder) Seed(ctx context.Context, count int, buckets []string) ([]ObjectRef, error) {
	if count <= 0 {
		return nil, nil
	}
	if len(buckets) == 0 {
		return nil, configErrorf("seeding needs at least one bucket")
	}
	if err := s.Payload.ValidateForPut(); err != nil {
		return nil, err
	}

	keys := s.Keys
	if keys == nil {
		keys = UUIDKeys{}
	}
	ticker := s.Ticker
	if ticker == nil {
		ticker = &NilTicker{}
	}
	batch := s.BatchPerHost
	if batch <= 0 {
		batch = DefaultBatchPerHost
	}
	limit := rate.Inf
	if s.RateLimit > 0 {
		limit = rate.Limit(s.RateLimit)
	}
	limiter := rate.NewLimiter(limit, batch)

	// keys are assigned up front so the result order doesn't depend on scheduling
	refs := make([]ObjectRef, count)
	for i := range refs {
		refs[i] = ObjectRef{Bucket: buckets[i%len(buckets)], Key: keys.NewKey(SeedKeyPrefix)}
	}

	s.logger().Info("seeding objects",
		zap.Int("count", count),
		zap.Int("buckets", len(buckets)),
		zap.String("size", ByteFormat(float64(s.Payload.Size()))),
		zap.Int("batch", batch))

	body := s.Payload.Bytes()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batch)
	for _, ref := range refs {
		ref := ref
		if err := limiter.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			resp, err := s.Client.PutObject(gctx, ref.Bucket, ref.Key, body)
			if err != nil {
				return errors.WithMessagef(err, "seed %s", ref)
			}
			if Classify(resp.Status) != Success {
				return errors.Errorf("seed %s: status %d", ref, resp.Status)
			}
			s.Metrics.SeedObjectCreated()
			_ = ticker.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// the group context is only cancelled by a failed upload, a cancelled parent ends up here
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger().Info("seeding done", zap.Int("count", count))
	return refs, nil
}

func (s *Seeder) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
