package obmark

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/tcnksm/go-httpstat"
)

const (
	defaultTimeout          = 180 * time.Second
	defaultIdleConnsPerHost = 1024

	// listing responses are small, anything above this is not a listing
	maxListBodyBytes = 64 << 20
)

// S3ObjectClient talks to an S3 compatible store. Every request is signed
// right before it is handed to the transport.
type S3ObjectClient struct {
	builder   *RequestBuilder
	transport Transport
	cfg       *ObjectClientConfig
}

func NewS3Client(obConfig *ObjectClientConfig) (*S3ObjectClient, error) {
	// the default of 2 idle connections per host forces a reconnect on almost every request under load
	idle := obConfig.MaxConnsPerHost
	if idle <= 0 {
		idle = defaultIdleConnsPerHost
	}

	// trust all certificates if asked to
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: obConfig.Insecure},
		DisableKeepAlives:   obConfig.DisableKeepAlives,
		MaxIdleConns:        idle,
		MaxIdleConnsPerHost: idle,
		MaxConnsPerHost:     obConfig.MaxConnsPerHost,
	}

	timeout := obConfig.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	// the timeout covers downloading the body as well
	return NewS3ClientWithTransport(obConfig, &http.Client{
		Timeout:   timeout,
		Transport: tr,
	})
}

func NewS3ClientWithTransport(obConfig *ObjectClientConfig, transport Transport) (*S3ObjectClient, error) {
	endpoint, err := ParseEndpoint(obConfig.Endpoint)
	if err != nil {
		return nil, err
	}

	region := obConfig.Region
	if region == "" {
		region = DefaultRegion
	}

	signer := NewSigner(Credentials{
		AccessKeyID:     obConfig.AccessKey,
		SecretAccessKey: obConfig.SecretKey,
		Region:          region,
		Service:         DefaultService,
	}, endpoint)
	signer.EscapePath = obConfig.EscapePath
	signer.UnsignedPayload = obConfig.UnsignedPayload

	return &S3ObjectClient{
		builder:   NewRequestBuilder(signer),
		transport: transport,
		cfg:       obConfig,
	}, nil
}

// Builder exposes the request builder, e.g. to swap the clock in tests.
func (c *S3ObjectClient) Builder() *RequestBuilder {
	return c.builder
}

func (c *S3ObjectClient) ListBuckets(ctx context.Context) ([]string, error) {
	req := &SignableRequest{
		Method: http.MethodGet,
		Path:   "/",
		Query:  map[string]string{"max-buckets": "1000"},
	}
	body, err := c.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	return parseBucketList(body)
}

func (c *S3ObjectClient) ListObjectsPage(ctx context.Context, bucket string, continuationToken string, maxKeys int) (*ListPage, error) {
	query := map[string]string{
		"list-type": "2",
		"max-keys":  strconv.Itoa(maxKeys),
	}
	if continuationToken != "" {
		query["continuation-token"] = continuationToken
	}
	req := &SignableRequest{
		Method: http.MethodGet,
		Path:   "/" + bucket,
		Query:  query,
	}
	body, err := c.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	return parseListPage(body)
}

func (c *S3ObjectClient) PutObject(ctx context.Context, bucket string, key string, body []byte) (*Response, error) {
	req := &SignableRequest{
		Method: http.MethodPut,
		Path:   "/" + bucket + "/" + key,
		Headers: []Header{
			{Name: "Content-Length", Value: strconv.Itoa(len(body))},
		},
		Body: body,
	}
	resp, _, err := c.do(ctx, req, false)
	return resp, err
}

func (c *S3ObjectClient) GetObject(ctx context.Context, bucket string, key string) (*Response, error) {
	req := &SignableRequest{
		Method: http.MethodGet,
		Path:   "/" + bucket + "/" + key,
	}
	resp, _, err := c.do(ctx, req, false)
	return resp, err
}

// fetch runs a setup request whose body is needed. Any non 2xx status is an error.
func (c *S3ObjectClient) fetch(ctx context.Context, req *SignableRequest) ([]byte, error) {
	resp, body, err := c.do(ctx, req, true)
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status > 299 {
		return nil, &StatusError{
			Method: req.Method,
			Path:   req.Path,
			Status: resp.Status,
			Code:   parseErrorCode(body),
		}
	}
	return body, nil
}

// do signs and sends the request. The returned response is never nil, even
// when the transport fails, so the caller can always record the latency.
func (c *S3ObjectClient) do(ctx context.Context, req *SignableRequest, keepBody bool) (*Response, []byte, error) {
	var result httpstat.Result
	ctx = httpstat.WithHTTPStat(ctx, &result)

	httpReq, err := c.builder.Build(ctx, req)
	if err != nil {
		return &Response{}, nil, err
	}

	// start the timer to measure the first byte and last byte latencies
	latencyTimer := time.Now()

	httpResp, err := c.transport.Do(httpReq)
	if err != nil {
		lat := latency(&result)
		lat.LastByte = time.Since(latencyTimer)
		return &Response{Latency: lat}, nil, errors.Wrapf(ErrTransport, "%s %s: %v", req.Method, req.Path, err)
	}

	// measure the first byte latency
	firstByte := time.Since(latencyTimer)

	var body []byte
	var n int64
	if keepBody {
		body, err = io.ReadAll(io.LimitReader(httpResp.Body, maxListBodyBytes))
		n = int64(len(body))
	} else {
		n, err = io.Copy(io.Discard, httpResp.Body)
	}
	closeErr := httpResp.Body.Close()

	// measure the last byte latency
	lat := latency(&result)
	lat.FirstByte = firstByte
	lat.LastByte = time.Since(latencyTimer)

	resp := &Response{
		Status:  httpResp.StatusCode,
		Bytes:   n,
		Latency: lat,
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		return resp, body, errors.Wrapf(ErrTransport, "%s %s: reading body: %v", req.Method, req.Path, err)
	}
	return resp, body, nil
}
