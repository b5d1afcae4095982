package website

import (
	"net/http"
	"strings"
)

// blockType describes the kind of anti-bot page the search engine served.
type blockType string

const (
	blockNone      blockType = ""
	blockAnomaly   blockType = "anomaly"
	blockCaptcha   blockType = "captcha"
	blockChallenge blockType = "challenge"
)

// detectBlock reports whether a results page is really a bot check. It is
// only consulted when the page yielded no results.
func detectBlock(resp *http.Response, body []byte) blockType {
	lower := strings.ToLower(string(body))

	// DuckDuckGo's rate-limit interstitial.
	if strings.Contains(lower, "anomaly-modal") || strings.Contains(lower, "bots use duckduckgo too") {
		return blockAnomaly
	}

	if strings.Contains(lower, "captcha") {
		return blockCaptcha
	}

	if resp != nil && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable) &&
		(resp.Header.Get("cf-ray") != "" || strings.EqualFold(resp.Header.Get("server"), "cloudflare")) {
		return blockChallenge
	}
	if strings.Contains(lower, "checking your browser") || strings.Contains(lower, "cf-browser-verification") {
		return blockChallenge
	}
	return blockNone
}
