package obmark

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUsesBuilderClock(t *testing.T) {
	builder := NewRequestBuilder(exampleSigner(t))
	builder.Now = func() time.Time { return exampleTime }

	req, err := builder.Build(context.Background(), &SignableRequest{
		Method:  "GET",
		Path:    "/test.txt",
		Headers: []Header{{Name: "Range", Value: "bytes=0-9"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "20130524T000000Z", req.Header.Get("X-Amz-Date"))
	assert.Equal(t, "f0e8bdb87c964420e857bd35b5d6ed310bd44f0170aba48dd91039c6036bdb41", signatureOf(t, req.Header.Get("Authorization")))
	assert.Equal(t, "examplebucket.s3.amazonaws.com", req.URL.Host)
	assert.Empty(t, req.Header.Get("Host"))
}

func TestBuildKeepsEncodedPathAndQuery(t *testing.T) {
	builder := NewRequestBuilder(exampleSigner(t))
	builder.Now = func() time.Time { return exampleTime }

	req, err := builder.Build(context.Background(), &SignableRequest{
		Method: "GET",
		Path:   "/bucket/a b+c",
		Query:  map[string]string{"continuation-token": "x y"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/bucket/a%20b%2Bc", req.URL.EscapedPath())
	assert.Equal(t, "continuation-token=x%20y", req.URL.RawQuery)
}

func TestBuildAttachesBody(t *testing.T) {
	builder := NewRequestBuilder(exampleSigner(t))
	body := []byte("payload-bytes")

	req, err := builder.Build(context.Background(), &SignableRequest{
		Method: "PUT",
		Path:   "/bucket/key",
		Body:   body,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(len(body)), req.ContentLength)
	got, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestBuildSignsAgainAtEveryCall(t *testing.T) {
	builder := NewRequestBuilder(exampleSigner(t))
	now := exampleTime
	builder.Now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	newReq := func() *SignableRequest { return &SignableRequest{Method: "GET", Path: "/bucket/key"} }
	first, err := builder.Build(context.Background(), newReq())
	require.NoError(t, err)
	second, err := builder.Build(context.Background(), newReq())
	require.NoError(t, err)

	assert.NotEqual(t, first.Header.Get("X-Amz-Date"), second.Header.Get("X-Amz-Date"))
	assert.NotEqual(t, first.Header.Get("Authorization"), second.Header.Get("Authorization"))
}
