package sbmark

import (
	"context"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedCall struct {
	method string
	path   string
	query  string
	body   string
}

func newProvisionServer(t *testing.T) (*httptest.Server, func() []recordedCall) {
	t.Helper()
	var mu sync.Mutex
	var calls []recordedCall
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, recordedCall{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, body: string(body)})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, func() []recordedCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedCall(nil), calls...)
	}
}

func TestProvisionerCreatesBuckets(t *testing.T) {
	server, calls := newProvisionServer(t)
	client, err := NewSDKClient(context.Background(), AWSOptions{
		Region:    "us-east-1",
		Endpoint:  server.URL,
		AccessKey: "test-access",
		SecretKey: "test-secret",
	})
	require.NoError(t, err)

	p := &Provisioner{Client: client, Region: "us-east-1", Keys: &SequentialKeys{}, Logger: zap.NewNop(), Concurrency: 2}
	names, err := p.CreateBuckets(context.Background(), 3, "bench", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"bench-000001", "bench-000002", "bench-000003"}, names)

	got := calls()
	require.Len(t, got, 3)
	paths := make([]string, 0, len(got))
	for _, c := range got {
		assert.Equal(t, http.MethodPut, c.method)
		paths = append(paths, c.path)
	}
	assert.ElementsMatch(t, []string{"/bench-000001", "/bench-000002", "/bench-000003"}, paths)
}

func TestProvisionerEnablesKMS(t *testing.T) {
	server, calls := newProvisionServer(t)
	client, err := NewSDKClient(context.Background(), AWSOptions{
		Region:    "us-east-1",
		Endpoint:  server.URL,
		AccessKey: "test-access",
		SecretKey: "test-secret",
	})
	require.NoError(t, err)

	p := &Provisioner{Client: client, Region: "us-east-1", Keys: &SequentialKeys{}}
	names, err := p.CreateBuckets(context.Background(), 1, "", "key-123")
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultBucketPrefix + "-000001"}, names)

	got := calls()
	require.Len(t, got, 2)
	assert.Equal(t, "/"+names[0], got[0].path)
	assert.Equal(t, "/"+names[0], got[1].path)
	assert.True(t, strings.HasPrefix(got[1].query, "encryption"), got[1].query)
	assert.Contains(t, got[1].body, "<SSEAlgorithm>aws:kms</SSEAlgorithm>")
	assert.Contains(t, got[1].body, "<KMSMasterKeyID>key-123</KMSMasterKeyID>")
	assert.Contains(t, got[1].body, "<BucketKeyEnabled>true</BucketKeyEnabled>")
}

func TestProvisionerRejectsZeroBuckets(t *testing.T) {
	p := &Provisioner{}
	_, err := p.CreateBuckets(context.Background(), 0, "x", "")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func writeCABundle(t *testing.T) string {
	t.Helper()
	server := httptest.NewTLSServer(http.NotFoundHandler())
	t.Cleanup(server.Close)
	path := filepath.Join(t.TempDir(), "ca.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: server.Certificate().Raw})
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestLoadAWSConfigWithCABundle(t *testing.T) {
	t.Setenv("AWS_CA_BUNDLE", writeCABundle(t))

	cfg, err := LoadAWSConfig(context.Background(), AWSOptions{
		Region:    "us-east-1",
		AccessKey: "a",
		SecretKey: "s",
		Insecure:  true,
	})
	require.NoError(t, err)

	client, ok := cfg.HTTPClient.(*awshttp.BuildableClient)
	require.True(t, ok, "%T", cfg.HTTPClient)
	tr := client.GetTransport()
	require.NotNil(t, tr.TLSClientConfig)
	assert.NotNil(t, tr.TLSClientConfig.RootCAs)
	assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)
	assert.Equal(t, sdkTimeout, client.GetTimeout())

	_, err = NewSDKClient(context.Background(), AWSOptions{Region: "us-east-1", AccessKey: "a", SecretKey: "s"})
	assert.NoError(t, err)
}

func TestResolveCredentialsPrefersStaticKeys(t *testing.T) {
	ak, sk, err := ResolveCredentials(context.Background(), AWSOptions{AccessKey: "a", SecretKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "a", ak)
	assert.Equal(t, "s", sk)
}

func TestResolveCredentialsFromEnvironment(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "env-access")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "env-secret")
	t.Setenv("AWS_SESSION_TOKEN", "")
	t.Setenv("AWS_CA_BUNDLE", writeCABundle(t))
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent/config")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent/credentials")

	ak, sk, err := ResolveCredentials(context.Background(), AWSOptions{Region: "us-east-1"})
	require.NoError(t, err)
	assert.Equal(t, "env-access", ak)
	assert.Equal(t, "env-secret", sk)
}
