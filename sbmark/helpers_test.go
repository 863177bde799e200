package sbmark

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumafield/s3-load-benchmark/obmark"
	"github.com/lumafield/s3-load-benchmark/obmark/obmarktest"
)

// fakeClient is a scripted ObjectClient.
type fakeClient struct {
	mu sync.Mutex

	buckets   []string
	pages     map[string][]*obmark.ListPage // keyed by continuation token
	listErr   error
	getStatus int
	putStatus int

	gets  []ObjectRef
	puts  []ObjectRef
	sizes []int
}

func (c *fakeClient) ListBuckets(ctx context.Context) ([]string, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.buckets, nil
}

func (c *fakeClient) ListObjectsPage(ctx context.Context, bucket string, token string, maxKeys int) (*obmark.ListPage, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	pages := c.pages[bucket]
	if token == "" {
		return pages[0], nil
	}
	for i, p := range pages {
		if p.ContinuationToken == token {
			return pages[i+1], nil
		}
	}
	return nil, obmark.ErrProtocol
}

func (c *fakeClient) PutObject(ctx context.Context, bucket string, key string, body []byte) (*obmark.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts = append(c.puts, ObjectRef{Bucket: bucket, Key: key})
	c.sizes = append(c.sizes, len(body))
	status := c.putStatus
	if status == 0 {
		status = 200
	}
	return &obmark.Response{Status: status}, nil
}

func (c *fakeClient) GetObject(ctx context.Context, bucket string, key string) (*obmark.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets = append(c.gets, ObjectRef{Bucket: bucket, Key: key})
	status := c.getStatus
	if status == 0 {
		status = 200
	}
	return &obmark.Response{Status: status, Bytes: 16}, nil
}

func (c *fakeClient) putCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.puts)
}

// newServerClient starts an in-memory S3 server and a signed client for it.
func newServerClient(t *testing.T) (*obmarktest.Server, *obmark.S3ObjectClient) {
	t.Helper()
	server := obmarktest.NewServer()
	t.Cleanup(server.Close)
	client, err := obmark.NewS3Client(&obmark.ObjectClientConfig{
		Endpoint:  server.URL,
		AccessKey: "test-access",
		SecretKey: "test-secret",
	})
	require.NoError(t, err)
	return server, client
}

// countingTicker records the progress it was given.
type countingTicker struct {
	mu    sync.Mutex
	total int
}

func (t *countingTicker) Add(n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total += n
	return nil
}

func (t *countingTicker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}
