package overpass

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/business-finder/internal/model"
	"github.com/sells-group/business-finder/internal/resilience"
)

var boulder = model.Location{Query: "Boulder", Latitude: 40.015, Longitude: -105.2705}

const sampleResponse = `{
  "version": 0.6,
  "elements": [
    {"type": "node", "id": 1, "lat": 40.0176, "lon": -105.2797,
     "tags": {"name": "Pearl Street Pub", "amenity": "pub", "addr:street": "Pearl Street", "addr:housenumber": "1108"}},
    {"type": "node", "id": 2, "lat": 40.0190, "lon": -105.2747,
     "tags": {"name": "Boulder Book Store", "shop": "books", "website": "https://boulderbookstore.net"}},
    {"type": "way", "id": 3, "nodes": [1, 2], "tags": {"name": "Pearl Street"}},
    {"type": "node", "id": 4, "lat": 40.02, "lon": -105.27}
  ]
}`

// fastRetry keeps the production schedule but records delays instead of sleeping.
func fastRetry(delays *[]time.Duration) resilience.RetryConfig {
	cfg := resilience.FromRetryConfig(3, 5, 2)
	cfg.Sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
	return cfg
}

func TestQueryNamedPoints_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/interpreter", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		ql := r.PostForm.Get("data")
		assert.Contains(t, ql, "[out:json][timeout:25];")
		assert.Contains(t, ql, `node["name"](around:5000,40.015,-105.2705);`)
		_, _ = io.WriteString(w, sampleResponse)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	recs, err := c.QueryNamedPoints(context.Background(), boulder, 5)
	require.NoError(t, err)

	require.Len(t, recs, 3)
	assert.Equal(t, int64(1), recs[0].ID)
	assert.Equal(t, "Pearl Street Pub", recs[0].Tags["name"])
	assert.InDelta(t, 40.0176, recs[0].Latitude, 1e-9)
	assert.Equal(t, "https://boulderbookstore.net", recs[1].Tags["website"])
	assert.NotNil(t, recs[2].Tags)
	assert.Empty(t, recs[2].Tags)
}

func TestQueryNamedPoints_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusGatewayTimeout)
			return
		}
		_, _ = io.WriteString(w, sampleResponse)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := NewClient(WithBaseURL(srv.URL), WithRetry(fastRetry(&delays)))
	recs, err := c.QueryNamedPoints(context.Background(), boulder, 1)
	require.NoError(t, err)

	assert.Len(t, recs, 3)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []time.Duration{5 * time.Second}, delays)
}

func TestQueryNamedPoints_FailsTwiceThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, sampleResponse)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := NewClient(WithBaseURL(srv.URL), WithRetry(fastRetry(&delays)))
	recs, err := c.QueryNamedPoints(context.Background(), boulder, 5)
	require.NoError(t, err)

	require.Len(t, recs, 3)
	assert.Equal(t, "Pearl Street Pub", recs[0].Tags["name"])
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, delays)
}

func TestQueryNamedPoints_BackendUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "parse error")
	}))
	defer srv.Close()

	var delays []time.Duration
	c := NewClient(WithBaseURL(srv.URL), WithRetry(fastRetry(&delays)))
	recs, err := c.QueryNamedPoints(context.Background(), boulder, 5)

	assert.Nil(t, recs)
	require.ErrorIs(t, err, model.ErrBackendUnavailable)
	var bu *model.BackendUnavailableError
	require.ErrorAs(t, err, &bu)
	assert.Equal(t, 3, bu.Attempts)
	assert.Contains(t, bu.Err.Error(), "unexpected status 400")
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, delays)
}

func TestQueryNamedPoints_RuntimeErrorRemark(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"elements": [], "remark": "runtime error: Query timed out in \"query\" at line 3 after 26 seconds."}`)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := NewClient(WithBaseURL(srv.URL), WithRetry(fastRetry(&delays)))
	_, err := c.QueryNamedPoints(context.Background(), boulder, 50)

	require.ErrorIs(t, err, model.ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "Query timed out")
	assert.Equal(t, int32(3), calls.Load())
}

func TestQueryNamedPoints_EmptyArea(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"elements": []}`)
	}))
	defer srv.Close()

	recs, err := NewClient(WithBaseURL(srv.URL)).QueryNamedPoints(context.Background(), boulder, 0.1)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestNamedNodesQuery(t *testing.T) {
	q := NamedNodesQuery(boulder, 2500, 25)
	want := "[out:json][timeout:25];\n(\n  node[\"name\"](around:2500,40.015,-105.2705);\n);\nout body;\n"
	assert.Equal(t, want, q)
}
