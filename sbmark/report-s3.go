package sbmark

import (
	"context"

	"go.uber.org/zap"

	"github.com/lumafield/s3-load-benchmark/obmark"
)

// Reporter uploads the JSON summary to a results bucket. Failures are logged
// and swallowed: the outcome of the run never depends on the upload.
type Reporter struct {
	Client obmark.ObjectClient
	Bucket string
	TestID string
	Keys   KeyGenerator
	Logger *zap.Logger
}

// Key returns a new result object key, "result-<test id>-<uuid>.json".
func (r *Reporter) Key() string {
	keys := r.Keys
	if keys == nil {
		keys = UUIDKeys{}
	}
	return keys.NewKey(ResultKeyPrefix+"-"+r.TestID) + ".json"
}

// Report returns the key of the uploaded object, or "" when nothing was stored.
func (r *Reporter) Report(ctx context.Context, summary *Summary) string {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if r.Bucket == "" || r.Client == nil {
		logger.Debug("no results bucket configured, skipping upload")
		return ""
	}

	body, err := ToJson(summary)
	if err != nil {
		logger.Error("failed to serialize results", zap.Error(err))
		return ""
	}

	key := r.Key()
	resp, err := r.Client.PutObject(ctx, r.Bucket, key, body)
	if err != nil {
		logger.Error("failed to upload results", zap.String("bucket", r.Bucket), zap.String("key", key), zap.Error(err))
		return ""
	}
	if Classify(resp.Status) != Success {
		logger.Error("failed to upload results", zap.String("bucket", r.Bucket), zap.String("key", key), zap.Int("status", resp.Status))
		return ""
	}

	logger.Info("results uploaded", zap.String("bucket", r.Bucket), zap.String("key", key), zap.Int("bytes", len(body)))
	return key
}
