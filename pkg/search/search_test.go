package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCluster struct {
	mu       sync.Mutex
	requests []string
	bodies   []string
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/_search"):
		_, _ = io.WriteString(w, `{"hits":{"total":{"value":1},"hits":[{"_source":{"id":"p1","name":"Atlas","description":"World maps","price":"10"}}]}}`)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"result":"not_found"}`)
	default:
		_, _ = io.WriteString(w, `{"result":"created"}`)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeCluster) {
	t.Helper()
	fc := &fakeCluster{}
	srv := httptest.NewServer(fc)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{URL: srv.URL, Index: "products"})
	require.NoError(t, err)
	return c, fc
}

func TestBuildQuery(t *testing.T) {
	t.Parallel()

	q := BuildQuery("atlas", 20, 10)
	mm := q["query"].(map[string]any)["multi_match"].(map[string]any)
	assert.Equal(t, "atlas", mm["query"])
	assert.Equal(t, []string{"name^2", "description"}, mm["fields"])
	assert.Equal(t, "AUTO", mm["fuzziness"])
	assert.Equal(t, 20, q["from"])
	assert.Equal(t, 10, q["size"])
}

func TestClient_SearchDecodesHits(t *testing.T) {
	t.Parallel()

	c, fc := newTestClient(t)
	total, docs, err := c.Search(context.Background(), "atlas", 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, docs, 1)
	assert.Equal(t, "Atlas", docs[0].Name)

	require.NotEmpty(t, fc.bodies)
	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(fc.bodies[len(fc.bodies)-1]), &sent))
	assert.Contains(t, sent, "query")
}

func TestClient_IndexAndDelete(t *testing.T) {
	t.Parallel()

	c, fc := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.IndexProduct(ctx, ProductDoc{ID: "p1", Name: "Atlas"}))
	require.NoError(t, c.DeleteProduct(ctx, "p1"))

	fc.mu.Lock()
	defer fc.mu.Unlock()
	assert.Contains(t, fc.requests, "PUT /products/_doc/p1")
	assert.Contains(t, fc.requests, "DELETE /products/_doc/p1")
}
