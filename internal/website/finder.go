// Package website guesses a business's official website from web search
// result pages.
package website

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/business-finder/internal/metrics"
	"github.com/sells-group/business-finder/internal/resilience"
)

const (
	defaultSearchURL  = "https://html.duckduckgo.com/html/"
	defaultTimeout    = 10 * time.Second
	defaultMaxResults = 5
	maxBodyBytes      = 2 << 20
)

// DefaultBlocklist holds host fragments that are never a business's own site.
var DefaultBlocklist = []string{
	"google.com",
	"bing.com",
	"yahoo.com",
	"youtube.com",
	"facebook.com",
	"wikipedia.org",
	"yelp.com",
	"duckduckgo.com",
}

// Option configures a Finder.
type Option func(*Finder)

// WithSearchURL points the finder at a different HTML search endpoint.
func WithSearchURL(u string) Option {
	return func(f *Finder) {
		if u != "" {
			f.searchURL = u
		}
	}
}

// WithHTTPClient sets the HTTP client used for searches.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Finder) {
		f.httpClient = hc
	}
}

// WithTimeout bounds each search request.
func WithTimeout(d time.Duration) Option {
	return func(f *Finder) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxResults sets how many result links are examined.
func WithMaxResults(n int) Option {
	return func(f *Finder) {
		if n > 0 {
			f.maxResults = n
		}
	}
}

// WithUserAgents sets the browser User-Agents rotated across requests.
func WithUserAgents(uas []string) Option {
	return func(f *Finder) {
		f.agents = newUARotation(uas)
	}
}

// WithBreaker stops searching while the search endpoint keeps failing.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(f *Finder) {
		f.breaker = cb
	}
}

// WithBlocklist replaces DefaultBlocklist.
func WithBlocklist(hosts []string) Option {
	return func(f *Finder) {
		f.blocklist = hosts
	}
}

// Finder looks up likely official websites. It never returns errors:
// every failure is logged and reported as no result.
type Finder struct {
	searchURL  string
	timeout    time.Duration
	maxResults int
	blocklist  []string
	httpClient *http.Client
	agents     *uaRotation
	breaker    *resilience.CircuitBreaker
}

// NewFinder creates a Finder for the DuckDuckGo HTML endpoint.
func NewFinder(opts ...Option) *Finder {
	f := &Finder{
		searchURL:  defaultSearchURL,
		timeout:    defaultTimeout,
		maxResults: defaultMaxResults,
		blocklist:  DefaultBlocklist,
		httpClient: &http.Client{},
		agents:     newUARotation(nil),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FindWebsite searches for "{name} {address} official website". A result
// whose host contains the lower-cased business name wins immediately;
// otherwise the first non-blocklisted result is returned.
func (f *Finder) FindWebsite(ctx context.Context, name, address string) (string, bool) {
	start := time.Now()
	log := zap.L().With(zap.String("business", name))

	hrefs, err := f.search(ctx, name+" "+address+" official website")
	if err != nil {
		metrics.ObserveWebsiteLookup(metrics.OutcomeError, start)
		log.Debug("website: search failed", zap.Error(err))
		return "", false
	}

	site, outcome := pickWebsite(name, hrefs, f.blocklist)
	metrics.ObserveWebsiteLookup(outcome, start)
	if site == "" {
		log.Debug("website: no candidate", zap.Int("results", len(hrefs)))
		return "", false
	}
	log.Info("website: found", zap.String("url", site), zap.String("outcome", outcome))
	return site, true
}

func (f *Finder) search(ctx context.Context, query string) ([]string, error) {
	if f.breaker == nil {
		return f.fetchResults(ctx, query)
	}
	return resilience.ExecuteVal(ctx, f.breaker, func(ctx context.Context) ([]string, error) {
		return f.fetchResults(ctx, query)
	})
}

// fetchResults returns the hrefs of the top result links.
func (f *Finder) fetchResults(ctx context.Context, query string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.searchURL+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, eris.Wrap(err, "website: build request")
	}
	req.Header.Set("User-Agent", f.agents.next())
	req.Header.Set("Accept", "text/html")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "website: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("website", resp.StatusCode, "")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "website: read body")
	}
	r, err := decodeBody(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "website: parse html")
	}

	var hrefs []string
	doc.Find("a.result__url").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(hrefs) >= f.maxResults {
			return false
		}
		href, _ := s.Attr("href")
		hrefs = append(hrefs, strings.TrimSpace(href))
		return true
	})

	if len(hrefs) == 0 {
		if bt := detectBlock(resp, body); bt != blockNone {
			return nil, resilience.NewTransientError(eris.Errorf("website: search blocked (%s)", bt), resp.StatusCode)
		}
	}
	return hrefs, nil
}

// decodeBody converts a non-UTF-8 page to UTF-8 using the charset from the
// Content-Type header.
func decodeBody(body []byte, contentType string) (io.Reader, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return bytes.NewReader(body), nil
	}
	charset := strings.ToLower(params["charset"])
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return bytes.NewReader(body), nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "website: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(bytes.NewReader(body)), nil
}

// pickWebsite applies the name-in-host heuristic to result hrefs in rank order.
func pickWebsite(name string, hrefs []string, blocklist []string) (string, string) {
	needle := strings.ToLower(name)
	fallback := ""
	for _, href := range hrefs {
		if href == "" {
			continue
		}
		u, err := url.Parse(href)
		if err != nil || u.Host == "" {
			continue
		}
		host := strings.ToLower(u.Host)
		if blocked(host, blocklist) {
			continue
		}
		if needle != "" && strings.Contains(host, needle) {
			scheme := u.Scheme
			if scheme == "" {
				scheme = "https"
			}
			return scheme + "://" + u.Host + u.Path, metrics.OutcomeMatch
		}
		if fallback == "" {
			fallback = href
		}
	}
	if fallback != "" {
		return fallback, metrics.OutcomeFallback
	}
	return "", metrics.OutcomeNone
}

func blocked(host string, blocklist []string) bool {
	for _, b := range blocklist {
		if strings.Contains(host, b) {
			return true
		}
	}
	return false
}
