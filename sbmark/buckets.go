package sbmark

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lumafield/s3-load-benchmark/obmark"
)

// ParseBucketList splits a ";" separated list and drops empty entries.
func ParseBucketList(s string) []string {
	var buckets []string
	for _, b := range strings.Split(s, ";") {
		if b = strings.TrimSpace(b); b != "" {
			buckets = append(buckets, b)
		}
	}
	return buckets
}

// ValidateBuckets fails fast when a configured bucket is not visible to the credentials.
func ValidateBuckets(ctx context.Context, client obmark.ObjectClient, buckets []string, logger *zap.Logger) error {
	if len(buckets) == 0 {
		return configErrorf("no buckets configured")
	}

	existing, err := client.ListBuckets(ctx)
	if err != nil {
		return errors.WithMessage(err, "list buckets")
	}

	known := make(map[string]bool, len(existing))
	for _, name := range existing {
		known[name] = true
	}

	var missing []string
	for _, b := range buckets {
		if !known[b] {
			missing = append(missing, b)
		}
	}
	if len(missing) > 0 {
		return configErrorf("buckets not found: %s", strings.Join(missing, ", "))
	}

	logger.Info("buckets validated", zap.Strings("buckets", buckets), zap.Int("visible", len(existing)))
	return nil
}
