package obmark

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	signingAlgorithm = "AWS4-HMAC-SHA256"
	scopeTerminator  = "aws4_request"
	amzDateFormat    = "20060102T150405Z"
	shortDateFormat  = "20060102"

	// UnsignedPayload replaces the payload digest when the body is not signed.
	UnsignedPayload = "UNSIGNED-PAYLOAD"
	// EmptyPayloadHash is the hex SHA-256 of a zero length body.
	EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	DefaultService = "s3"
	DefaultRegion  = "us-east-1"

	maxPresignExpiry = 7 * 24 * time.Hour
)

// ErrSigning marks a request that can't be signed. It is always a programming
// or configuration mistake and must never be retried.
var ErrSigning = errors.New("signing error")

// headers that proxies or the transport may rewrite
var unsignableHeaders = map[string]bool{
	"authorization":       true,
	"connection":          true,
	"expect":              true,
	"keep-alive":          true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
	"user-agent":          true,
	"x-amzn-trace-id":     true,
}

// Credentials used to derive the signing key.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Service         string
}

// Endpoint is the base URL of the target object store.
type Endpoint struct {
	Scheme   string
	Host     string
	BasePath string
}

func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Endpoint{}, errors.Wrapf(ErrSigning, "invalid endpoint %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Endpoint{}, errors.Wrapf(ErrSigning, "endpoint %q must use http or https", raw)
	}
	if u.Host == "" {
		return Endpoint{}, errors.Wrapf(ErrSigning, "endpoint %q has no host", raw)
	}
	return Endpoint{
		Scheme:   u.Scheme,
		Host:     u.Host,
		BasePath: strings.TrimRight(u.EscapedPath(), "/"),
	}, nil
}

func (e Endpoint) String() string {
	return e.Scheme + "://" + e.Host + e.BasePath
}

// Header is a single request header. Order matters: values of repeated names
// are joined in the order they were added.
type Header struct {
	Name  string
	Value string
}

// SignableRequest is the input of the signer. Path is the unescaped object
// path, e.g. "/bucket/some key".
type SignableRequest struct {
	Method  string
	Path    string
	Headers []Header
	Query   map[string]string
	Body    []byte
}

// SignedRequest is only valid for a few minutes after SigningTime.
type SignedRequest struct {
	Method      string
	URL         string
	Headers     http.Header
	Body        []byte
	SigningTime time.Time
}

type Signer struct {
	Credentials Credentials

	Endpoint Endpoint

	// EscapePath encodes the already escaped path a second time in the
	// canonical request. S3 expects it to be false.
	EscapePath bool

	// UnsignedPayload signs the fixed UNSIGNED-PAYLOAD sentinel instead of the body digest.
	UnsignedPayload bool
}

func NewSigner(credentials Credentials, endpoint Endpoint) *Signer {
	if credentials.Service == "" {
		credentials.Service = DefaultService
	}
	return &Signer{
		Credentials: credentials,
		Endpoint:    endpoint,
	}
}

// Sign computes the Authorization header for req at signingTime.
func (s *Signer) Sign(req *SignableRequest, signingTime time.Time) (*SignedRequest, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	t := signingTime.UTC()
	amzDate := t.Format(amzDateFormat)
	method := strings.ToUpper(req.Method)
	payloadHash := s.payloadHash(req.Body)

	path := s.Endpoint.BasePath + EncodePath(req.Path)
	query := CanonicalQuery(req.Query)

	block := newHeaderBlock(req.Headers)
	block.set("host", s.Endpoint.Host)
	block.set("x-amz-date", amzDate)
	block.set("x-amz-content-sha256", payloadHash)
	canonicalHeaders, signedHeaders := block.canonical()

	canonicalRequest := strings.Join([]string{
		method,
		s.canonicalURI(path),
		query,
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := s.credentialScope(t)
	signature := s.signature(t, amzDate, scope, canonicalRequest)

	headers := make(http.Header, len(req.Headers)+3)
	for _, h := range req.Headers {
		if strings.EqualFold(h.Name, "host") {
			continue
		}
		headers.Add(h.Name, h.Value)
	}
	headers.Set("X-Amz-Date", amzDate)
	headers.Set("X-Amz-Content-Sha256", payloadHash)
	headers.Set("Authorization", signingAlgorithm+
		" Credential="+s.Credentials.AccessKeyID+"/"+scope+
		", SignedHeaders="+signedHeaders+
		", Signature="+signature)

	return &SignedRequest{
		Method:      method,
		URL:         s.url(path, query),
		Headers:     headers,
		Body:        req.Body,
		SigningTime: t,
	}, nil
}

// Presign moves the authorization into the query string. The payload is never
// signed for presigned requests.
func (s *Signer) Presign(req *SignableRequest, expires time.Duration, signingTime time.Time) (*SignedRequest, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if expires < time.Second || expires > maxPresignExpiry {
		return nil, errors.Wrapf(ErrSigning, "presign expiry %s out of range", expires)
	}

	t := signingTime.UTC()
	amzDate := t.Format(amzDateFormat)
	method := strings.ToUpper(req.Method)
	scope := s.credentialScope(t)

	block := newHeaderBlock(req.Headers)
	block.set("host", s.Endpoint.Host)
	canonicalHeaders, signedHeaders := block.canonical()

	params := make(map[string]string, len(req.Query)+5)
	for k, v := range req.Query {
		params[k] = v
	}
	params["X-Amz-Algorithm"] = signingAlgorithm
	params["X-Amz-Credential"] = s.Credentials.AccessKeyID + "/" + scope
	params["X-Amz-Date"] = amzDate
	params["X-Amz-Expires"] = strconv.FormatInt(int64(expires/time.Second), 10)
	params["X-Amz-SignedHeaders"] = signedHeaders
	query := CanonicalQuery(params)

	path := s.Endpoint.BasePath + EncodePath(req.Path)
	canonicalRequest := strings.Join([]string{
		method,
		s.canonicalURI(path),
		query,
		canonicalHeaders,
		signedHeaders,
		UnsignedPayload,
	}, "\n")

	signature := s.signature(t, amzDate, scope, canonicalRequest)
	query += "&X-Amz-Signature=" + signature

	headers := make(http.Header, len(req.Headers))
	for _, h := range req.Headers {
		if strings.EqualFold(h.Name, "host") {
			continue
		}
		headers.Add(h.Name, h.Value)
	}

	return &SignedRequest{
		Method:      method,
		URL:         s.url(path, query),
		Headers:     headers,
		Body:        req.Body,
		SigningTime: t,
	}, nil
}

func (s *Signer) validate(req *SignableRequest) error {
	switch {
	case req == nil:
		return errors.Wrap(ErrSigning, "nil request")
	case req.Method == "":
		return errors.Wrap(ErrSigning, "missing method")
	case req.Path == "":
		return errors.Wrap(ErrSigning, "missing path")
	case s.Credentials.AccessKeyID == "" || s.Credentials.SecretAccessKey == "":
		return errors.Wrap(ErrSigning, "missing credentials")
	case s.Credentials.Region == "":
		return errors.Wrap(ErrSigning, "missing region")
	case s.Endpoint.Host == "":
		return errors.Wrap(ErrSigning, "missing endpoint")
	}
	return nil
}

func (s *Signer) service() string {
	if s.Credentials.Service == "" {
		return DefaultService
	}
	return s.Credentials.Service
}

func (s *Signer) payloadHash(body []byte) string {
	if s.UnsignedPayload {
		return UnsignedPayload
	}
	if len(body) == 0 {
		return EmptyPayloadHash
	}
	return hashHex(body)
}

func (s *Signer) canonicalURI(path string) string {
	if s.EscapePath {
		return uriEncode(path, false)
	}
	return path
}

func (s *Signer) credentialScope(t time.Time) string {
	return strings.Join([]string{
		t.Format(shortDateFormat),
		s.Credentials.Region,
		s.service(),
		scopeTerminator,
	}, "/")
}

func (s *Signer) signature(t time.Time, amzDate, scope, canonicalRequest string) string {
	stringToSign := strings.Join([]string{
		signingAlgorithm,
		amzDate,
		scope,
		hashHex([]byte(canonicalRequest)),
	}, "\n")
	return hex.EncodeToString(hmacSHA256(s.signingKey(t), stringToSign))
}

// signingKey chains the secret through date, region, service and the scope terminator.
func (s *Signer) signingKey(t time.Time) []byte {
	kDate := hmacSHA256([]byte("AWS4"+s.Credentials.SecretAccessKey), t.Format(shortDateFormat))
	kRegion := hmacSHA256(kDate, s.Credentials.Region)
	kService := hmacSHA256(kRegion, s.service())
	return hmacSHA256(kService, scopeTerminator)
}

func (s *Signer) url(path, query string) string {
	u := s.Endpoint.Scheme + "://" + s.Endpoint.Host + path
	if query != "" {
		u += "?" + query
	}
	return u
}

// EncodePath escapes every segment of an object path and keeps the slashes.
func EncodePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return uriEncode(path, false)
}

// CanonicalQuery sorts and encodes query parameters. The same string is used
// in the canonical request and in the final URL.
func CanonicalQuery(query map[string]string) string {
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	encoded := make(map[string]string, len(query))
	for k, v := range query {
		ek := uriEncode(k, true)
		keys = append(keys, ek)
		encoded[ek] = uriEncode(v, true)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(encoded[k])
	}
	return b.String()
}

func uriEncode(s string, encodeSlash bool) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || (c == '/' && !encodeSlash) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

// headerBlock keeps lower-cased header names with their values in insertion order.
type headerBlock struct {
	values map[string][]string
}

func newHeaderBlock(headers []Header) *headerBlock {
	b := &headerBlock{values: make(map[string][]string, len(headers)+3)}
	for _, h := range headers {
		name := strings.ToLower(strings.TrimSpace(h.Name))
		if name == "" || unsignableHeaders[name] {
			continue
		}
		b.values[name] = append(b.values[name], trimHeaderValue(h.Value))
	}
	return b
}

func (b *headerBlock) set(name, value string) {
	b.values[name] = []string{value}
}

func (b *headerBlock) canonical() (canonicalHeaders string, signedHeaders string) {
	names := make([]string, 0, len(b.values))
	for name := range b.values {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(name)
		sb.WriteByte(':')
		sb.WriteString(strings.Join(b.values[name], ", "))
		sb.WriteByte('\n')
	}
	return sb.String(), strings.Join(names, ";")
}

// trims the value and collapses inner runs of spaces
func trimHeaderValue(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
