package sbmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumafield/s3-load-benchmark/obmark"
)

func TestParseBucketList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, ParseBucketList("a;b;;c"))
	assert.Equal(t, []string{"only"}, ParseBucketList(" only ;"))
	assert.Empty(t, ParseBucketList(""))
}

func TestValidateBuckets(t *testing.T) {
	server, client := newServerClient(t)
	server.AddBucket("alpha")
	server.AddBucket("beta")
	ctx := context.Background()

	assert.NoError(t, ValidateBuckets(ctx, client, []string{"beta", "alpha"}, zap.NewNop()))

	err := ValidateBuckets(ctx, client, []string{"alpha", "gamma"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "gamma")

	assert.ErrorIs(t, ValidateBuckets(ctx, client, nil, zap.NewNop()), ErrConfiguration)
}

func TestValidateBucketsListFailure(t *testing.T) {
	client := &fakeClient{listErr: obmark.ErrTransport}
	err := ValidateBuckets(context.Background(), client, []string{"a"}, zap.NewNop())
	assert.ErrorIs(t, err, obmark.ErrTransport)
}

func TestListAllObjectsFollowsPages(t *testing.T) {
	server, client := newServerClient(t)
	server.PageSize = 7
	const n = 50
	for i := 0; i < n; i++ {
		server.AddObject("bench", fmt.Sprintf("obj-%03d", i), nil)
	}
	ticker := &countingTicker{}

	refs, err := ListAllObjects(context.Background(), client, "bench", 0, ticker)
	require.NoError(t, err)
	require.Len(t, refs, n)
	for i, ref := range refs {
		assert.Equal(t, ObjectRef{Bucket: "bench", Key: fmt.Sprintf("obj-%03d", i)}, ref)
	}
	assert.Equal(t, n, ticker.Total())
	// ceil(50 / 7) pages
	assert.Equal(t, 8, server.Count("GET"))
}

func TestListAllObjectsEmptyBucket(t *testing.T) {
	server, client := newServerClient(t)
	server.AddBucket("empty")

	refs, err := ListAllObjects(context.Background(), client, "empty", 0, nil)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestListAllObjectsLimit(t *testing.T) {
	server, client := newServerClient(t)
	server.PageSize = 4
	for i := 0; i < 20; i++ {
		server.AddObject("bench", fmt.Sprintf("obj-%03d", i), nil)
	}

	refs, err := ListAllObjects(context.Background(), client, "bench", 6, nil)
	require.NoError(t, err)
	assert.Len(t, refs, 6)
	assert.Equal(t, 2, server.Count("GET"))
}

func TestListAllObjectsMissingBucket(t *testing.T) {
	_, client := newServerClient(t)

	_, err := ListAllObjects(context.Background(), client, "missing", 0, nil)
	require.Error(t, err)
	var statusErr *obmark.StatusError
	assert.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 404, statusErr.Status)
}

func TestListAllObjectsTruncatedWithoutToken(t *testing.T) {
	client := &fakeClient{pages: map[string][]*obmark.ListPage{
		"bench": {{Keys: []string{"a"}, Truncated: true}},
	}}

	_, err := ListAllObjects(context.Background(), client, "bench", 0, nil)
	assert.ErrorIs(t, err, obmark.ErrProtocol)
}

func TestListBucketsKeepsBucketOrder(t *testing.T) {
	server, client := newServerClient(t)
	server.PageSize = 3
	buckets := []string{"zeta", "alpha", "mid"}
	for b, name := range buckets {
		for i := 0; i < 5+b; i++ {
			server.AddObject(name, fmt.Sprintf("k%02d", i), nil)
		}
	}

	refs, err := ListBuckets(context.Background(), client, buckets, 2, 0, nil)
	require.NoError(t, err)
	require.Len(t, refs, 5+6+7)
	assert.Equal(t, "zeta", refs[0].Bucket)
	assert.Equal(t, "zeta", refs[4].Bucket)
	assert.Equal(t, "alpha", refs[5].Bucket)
	assert.Equal(t, "mid", refs[len(refs)-1].Bucket)
	assert.Equal(t, "k06", refs[len(refs)-1].Key)
}

func TestListBucketsFailsOnAnyBucket(t *testing.T) {
	server, client := newServerClient(t)
	server.AddObject("alpha", "k", nil)

	_, err := ListBuckets(context.Background(), client, []string{"alpha", "missing"}, 0, 0, nil)
	assert.Error(t, err)
}
