package sbmark

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultBucketPrefix names buckets created by the provisioner.
const DefaultBucketPrefix = "bench-bucket"

// BucketAPI is the part of the SDK client used for provisioning.
type BucketAPI interface {
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutBucketEncryption(ctx context.Context, params *s3.PutBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.PutBucketEncryptionOutput, error)
}

// Provisioner creates the buckets a benchmark runs against.
type Provisioner struct {
	Client BucketAPI
	Region string
	Keys   KeyGenerator
	Logger *zap.Logger

	// Concurrency bounds the bucket creations in flight, zero means all at once.
	Concurrency int
}

// CreateBuckets creates n buckets named "<prefix>-<uuid>". With a KMS key id
// every bucket gets default aws:kms encryption with the bucket key enabled.
func (p *Provisioner) CreateBuckets(ctx context.Context, n int, prefix string, kmsKeyID string) ([]string, error) {
	if n <= 0 {
		return nil, configErrorf("bucket count must be positive, got %d", n)
	}
	if prefix == "" {
		prefix = DefaultBucketPrefix
	}
	keys := p.Keys
	if keys == nil {
		keys = UUIDKeys{}
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	names := make([]string, n)
	for i := range names {
		names[i] = keys.NewKey(prefix)
	}

	g, gctx := errgroup.WithContext(ctx)
	if p.Concurrency > 0 {
		g.SetLimit(p.Concurrency)
	}
	for _, name := range names {
		name := name
		g.Go(func() error {
			if err := p.createBucket(gctx, name); err != nil {
				return err
			}
			if kmsKeyID != "" {
				if err := p.encryptBucket(gctx, name, kmsKeyID); err != nil {
					return err
				}
			}
			logger.Info("bucket created", zap.String("bucket", name), zap.Bool("kms", kmsKeyID != ""))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return names, nil
}

func (p *Provisioner) createBucket(ctx context.Context, name string) error {
	input := &s3.CreateBucketInput{
		Bucket: aws.String(name),
	}
	// us-east-1 is the only region that rejects an explicit location constraint
	if p.Region != "" && p.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(p.Region),
		}
	}
	if _, err := p.Client.CreateBucket(ctx, input); err != nil {
		return errors.Wrapf(err, "create bucket %s", name)
	}
	return nil
}

func (p *Provisioner) encryptBucket(ctx context.Context, name string, kmsKeyID string) error {
	_, err := p.Client.PutBucketEncryption(ctx, &s3.PutBucketEncryptionInput{
		Bucket: aws.String(name),
		ServerSideEncryptionConfiguration: &types.ServerSideEncryptionConfiguration{
			Rules: []types.ServerSideEncryptionRule{{
				ApplyServerSideEncryptionByDefault: &types.ServerSideEncryptionByDefault{
					SSEAlgorithm:   types.ServerSideEncryptionAwsKms,
					KMSMasterKeyID: aws.String(kmsKeyID),
				},
				BucketKeyEnabled: true,
			}},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "enable encryption on bucket %s", name)
	}
	return nil
}
