package sbmark

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lumafield/s3-load-benchmark/obmark"
)

// ListPageSize is the max-keys value of every listing request.
const ListPageSize = 1000

// ListAllObjects pages through a bucket until the listing is no longer truncated.
// limit caps the number of returned objects, zero means no cap.
func ListAllObjects(ctx context.Context, client obmark.ObjectClient, bucket string, limit int, ticker Ticker) ([]ObjectRef, error) {
	if ticker == nil {
		ticker = &NilTicker{}
	}

	var refs []ObjectRef
	token := ""
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := client.ListObjectsPage(ctx, bucket, token, ListPageSize)
		if err != nil {
			return nil, errors.WithMessagef(err, "list %s page %d", bucket, page)
		}

		for _, key := range result.Keys {
			refs = append(refs, ObjectRef{Bucket: bucket, Key: key})
		}
		_ = ticker.Add(len(result.Keys))

		if limit > 0 && len(refs) >= limit {
			return refs[:limit], nil
		}
		if !result.Truncated {
			return refs, nil
		}
		// a truncated page without a token would restart the listing forever
		if result.ContinuationToken == "" {
			return nil, errors.Wrapf(obmark.ErrProtocol, "list %s page %d: truncated without continuation token", bucket, page)
		}
		token = result.ContinuationToken
	}
}

// ListBuckets enumerates every bucket with up to concurrency listings in
// flight and concatenates the results in bucket order.
func ListBuckets(ctx context.Context, client obmark.ObjectClient, buckets []string, concurrency int, limit int, ticker Ticker) ([]ObjectRef, error) {
	if concurrency <= 0 {
		concurrency = len(buckets)
	}

	perBucket := make([][]ObjectRef, len(buckets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, bucket := range buckets {
		i, bucket := i, bucket
		g.Go(func() error {
			refs, err := ListAllObjects(gctx, client, bucket, limit, ticker)
			if err != nil {
				return err
			}
			perBucket[i] = refs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, refs := range perBucket {
		total += len(refs)
	}
	all := make([]ObjectRef, 0, total)
	for _, refs := range perBucket {
		all = append(all, refs...)
	}
	return all, nil
}
