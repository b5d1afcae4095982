// Package overpass queries an Overpass API interpreter for named points of
// interest around a location.
package overpass

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/business-finder/internal/metrics"
	"github.com/sells-group/business-finder/internal/model"
	"github.com/sells-group/business-finder/internal/resilience"
)

const (
	defaultBaseURL      = "https://overpass-api.de/api"
	defaultQueryTimeout = 25
	defaultHTTPTimeout  = 60 * time.Second
)

// response is the subset of the Overpass JSON output we read.
type response struct {
	Remark   string    `json:"remark"`
	Elements []element `json:"elements"`
}

type element struct {
	Type string            `json:"type"`
	ID   int64             `json:"id"`
	Lat  float64           `json:"lat"`
	Lon  float64           `json:"lon"`
	Tags map[string]string `json:"tags"`
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the API root; the interpreter lives at {base}/interpreter.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client used for queries.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetry replaces the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithQueryTimeout sets the server-side execution budget in seconds.
func WithQueryTimeout(secs int) Option {
	return func(c *Client) {
		if secs > 0 {
			c.queryTimeout = secs
		}
	}
}

// Client runs spatial queries against Overpass.
type Client struct {
	baseURL      string
	queryTimeout int
	httpClient   *http.Client
	retry        resilience.RetryConfig
}

// NewClient creates a Client that retries every failure three times with
// 5s and 10s pauses between attempts.
func NewClient(opts ...Option) *Client {
	retry := resilience.FromRetryConfig(3, 5, 2)
	retry.OnRetry = resilience.RetryLogger("overpass", "query_named_points")
	c := &Client{
		baseURL:      defaultBaseURL,
		queryTimeout: defaultQueryTimeout,
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
		retry:        retry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// QueryNamedPoints returns every named node within radiusKM of center.
// After the last failed attempt it returns a *model.BackendUnavailableError
// wrapping the final error; partial results are never returned.
func (c *Client) QueryNamedPoints(ctx context.Context, center model.Location, radiusKM float64) ([]model.RawPointRecord, error) {
	query := NamedNodesQuery(center, radiusKM*1000, c.queryTimeout)
	log := zap.L().With(
		zap.Float64("lat", center.Latitude),
		zap.Float64("lon", center.Longitude),
		zap.Float64("radius_km", radiusKM),
	)
	log.Debug("overpass: query", zap.String("ql", query))

	attempts := 0
	records, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]model.RawPointRecord, error) {
		attempts++
		recs, err := c.execute(ctx, query)
		if err != nil {
			metrics.OverpassAttemptsTotal.WithLabelValues("error").Inc()
			log.Warn("overpass: attempt failed", zap.Int("attempt", attempts), zap.Error(err))
			return nil, err
		}
		metrics.OverpassAttemptsTotal.WithLabelValues("ok").Inc()
		return recs, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "overpass: query cancelled")
		}
		log.Error("overpass: giving up", zap.Int("attempts", attempts), zap.Error(err))
		return nil, &model.BackendUnavailableError{Attempts: attempts, Err: err}
	}

	log.Info("overpass: query complete", zap.Int("nodes", len(records)), zap.Int("attempts", attempts))
	return records, nil
}

func (c *Client) execute(ctx context.Context, query string) ([]model.RawPointRecord, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/interpreter", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("overpass", resp.StatusCode, string(body))
	}

	return parseResponse(body)
}

// parseResponse keeps node elements only. A remark reporting a runtime
// error means the server aborted the query and the elements are incomplete.
func parseResponse(body []byte) ([]model.RawPointRecord, error) {
	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, eris.Wrap(err, "overpass: parse response")
	}
	if strings.Contains(strings.ToLower(r.Remark), "runtime error") {
		return nil, resilience.NewTransientError(eris.Errorf("overpass: %s", r.Remark), http.StatusOK)
	}

	records := make([]model.RawPointRecord, 0, len(r.Elements))
	for _, el := range r.Elements {
		if el.Type != "node" {
			continue
		}
		tags := el.Tags
		if tags == nil {
			tags = map[string]string{}
		}
		records = append(records, model.RawPointRecord{
			ID:        el.ID,
			Latitude:  el.Lat,
			Longitude: el.Lon,
			Tags:      tags,
		})
	}
	return records, nil
}
