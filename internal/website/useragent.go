package website

import "sync/atomic"

// defaultUserAgents are desktop browser strings. The search endpoint serves
// a stripped page to unknown clients.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
}

// uaRotation hands out User-Agents round-robin. Safe for concurrent use.
type uaRotation struct {
	uas     []string
	counter atomic.Uint64
}

func newUARotation(uas []string) *uaRotation {
	if len(uas) == 0 {
		uas = defaultUserAgents
	}
	return &uaRotation{uas: append([]string(nil), uas...)}
}

func (r *uaRotation) next() string {
	idx := r.counter.Add(1) - 1
	return r.uas[idx%uint64(len(r.uas))]
}
