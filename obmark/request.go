package obmark

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Transport is the blocking request/response primitive. *http.Client implements it.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestBuilder signs a request at the current time and turns it into an *http.Request.
type RequestBuilder struct {
	Signer *Signer

	// Now is read right before every signature. Defaults to time.Now.
	Now func() time.Time
}

func NewRequestBuilder(signer *Signer) *RequestBuilder {
	return &RequestBuilder{Signer: signer, Now: time.Now}
}

func (b *RequestBuilder) Build(ctx context.Context, req *SignableRequest) (*http.Request, error) {
	// the timestamp is taken here so it is never older than the request
	signed, err := b.Signer.Sign(req, b.now())
	if err != nil {
		return nil, err
	}
	return signed.HTTPRequest(ctx)
}

func (b *RequestBuilder) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

// HTTPRequest builds the transport request. The body references the signed
// buffer, it is not copied.
func (r *SignedRequest) HTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, errors.Wrapf(ErrSigning, "build %s %s: %v", r.Method, r.URL, err)
	}
	for name, values := range r.Headers {
		httpReq.Header[name] = values
	}
	httpReq.ContentLength = int64(len(r.Body))
	return httpReq, nil
}
