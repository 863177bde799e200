package sbmark

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

const sdkTimeout = 180 * time.Second

// AWSOptions configures the SDK based clients.
type AWSOptions struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Insecure  bool
}

// LoadAWSConfig uses the static keys when both are given, otherwise the
// default chain (environment, shared files, instance profile).
func LoadAWSConfig(ctx context.Context, opts AWSOptions) (aws.Config, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	// set the endpoint in the configuration
	if opts.Endpoint != "" {
		customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               opts.Endpoint,
				HostnameImmutable: true,
				SigningRegion:     region,
			}, nil
		})
		loadOpts = append(loadOpts, config.WithEndpointResolverWithOptions(customResolver))
	}

	// trust all certificates if asked to, with a 3-minute timeout for all calls.
	// the buildable client lets the SDK add an AWS_CA_BUNDLE on top.
	loadOpts = append(loadOpts, config.WithHTTPClient(awshttp.NewBuildableClient().
		WithTimeout(sdkTimeout).
		WithTransportOptions(func(tr *http.Transport) {
			if tr.TLSClientConfig == nil {
				tr.TLSClientConfig = &tls.Config{}
			}
			tr.TLSClientConfig.InsecureSkipVerify = opts.Insecure
		})))

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, errors.Wrapf(ErrConfiguration, "load AWS SDK config: %v", err)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return cfg, nil
}

// ResolveCredentials returns the configured keys, or the ones found by the
// SDK default chain when they are not set.
func ResolveCredentials(ctx context.Context, opts AWSOptions) (string, string, error) {
	if opts.AccessKey != "" && opts.SecretKey != "" {
		return opts.AccessKey, opts.SecretKey, nil
	}
	cfg, err := LoadAWSConfig(ctx, opts)
	if err != nil {
		return "", "", err
	}
	if cfg.Credentials == nil {
		return "", "", configErrorf("no credentials configured")
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return "", "", errors.Wrapf(ErrConfiguration, "no credentials configured: %v", err)
	}
	if creds.SessionToken != "" {
		return "", "", configErrorf("temporary credentials are not supported, set static keys")
	}
	return creds.AccessKeyID, creds.SecretAccessKey, nil
}

// NewSDKClient builds an S3 client for the given options. Custom endpoints get
// path style addressing since they rarely support the bucket in the host name.
func NewSDKClient(ctx context.Context, opts AWSOptions) (*s3.Client, error) {
	cfg, err := LoadAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opts.Endpoint != ""
	}), nil
}
