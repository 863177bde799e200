package obmark

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrTransport marks network level failures. The request may or may not have reached the server.
	ErrTransport = errors.New("transport error")

	// ErrProtocol marks a response body that doesn't have the expected shape.
	ErrProtocol = errors.New("protocol error")
)

// Specific Object API abstraction used to create benchmarks for
type ObjectClient interface {
	ListBuckets(ctx context.Context) ([]string, error)
	ListObjectsPage(ctx context.Context, bucket string, continuationToken string, maxKeys int) (*ListPage, error)
	PutObject(ctx context.Context, bucket string, key string, body []byte) (*Response, error)
	GetObject(ctx context.Context, bucket string, key string) (*Response, error)
}

type ObjectClientConfig struct {
	Region            string
	Endpoint          string
	AccessKey         string
	SecretKey         string
	Insecure          bool
	DisableKeepAlives bool
	Timeout           time.Duration
	MaxConnsPerHost   int
	UnsignedPayload   bool
	EscapePath        bool
}

// Response of a single object operation. A non 2xx status is not an error.
type Response struct {
	Status  int
	Bytes   int64
	Latency Latency
}

// ListPage is one page of a ListObjectsV2 response.
type ListPage struct {
	Keys              []string
	Truncated         bool
	ContinuationToken string
}

// StatusError is returned by the listing calls when the store answers with a non 2xx status.
type StatusError struct {
	Method string
	Path   string
	Status int
	Code   string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: status %d (%s)", e.Method, e.Path, e.Status, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}
