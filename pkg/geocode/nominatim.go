package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/business-finder/internal/resilience"
)

const (
	defaultNominatimURL = "https://nominatim.openstreetmap.org"
	defaultUserAgent    = "business_finder"
	defaultTimeout      = 10 * time.Second
)

// nominatimPlace is one element of a format=jsonv2 search response.
// Coordinates are returned as strings.
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Option configures a NominatimClient.
type Option func(*NominatimClient)

// WithBaseURL points the client at a different Nominatim instance.
func WithBaseURL(u string) Option {
	return func(c *NominatimClient) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient sets the HTTP client used for lookups.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *NominatimClient) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit. The public instance
// asks for at most one request per second.
func WithRateLimit(rps float64) Option {
	return func(c *NominatimClient) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUserAgent sets the User-Agent sent with each request.
func WithUserAgent(ua string) Option {
	return func(c *NominatimClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTimeout bounds each lookup, including time spent waiting on the
// rate limiter.
func WithTimeout(d time.Duration) Option {
	return func(c *NominatimClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NominatimClient implements Geocoder against the Nominatim search API.
type NominatimClient struct {
	baseURL    string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewNominatimClient creates a client for the public Nominatim instance
// unless WithBaseURL says otherwise.
func NewNominatimClient(opts ...Option) *NominatimClient {
	c := &NominatimClient{
		baseURL:    defaultNominatimURL,
		userAgent:  defaultUserAgent,
		timeout:    defaultTimeout,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup geocodes query and returns the top hit, or nil when there is none.
func (c *NominatimClient) Lookup(ctx context.Context, query string) (*Match, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	params := url.Values{
		"q":      {query},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("geocode", resp.StatusCode, string(body))
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}
	if len(places) == 0 {
		zap.L().Debug("geocode: no match", zap.String("query", query))
		return nil, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: parse latitude %q", places[0].Lat)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: parse longitude %q", places[0].Lon)
	}
	return &Match{Latitude: lat, Longitude: lon, DisplayName: places[0].DisplayName}, nil
}
