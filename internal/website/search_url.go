package website

import (
	"net/url"
	"strings"
)

const browserSearchBase = "https://www.bing.com/search"

// BrowserSearchURL returns a web search link a person can open to look up
// the business by hand.
func BrowserSearchURL(name, address string) string {
	q := strings.TrimSpace(name + " " + address + " website")
	return browserSearchBase + "?q=" + url.QueryEscape(q)
}
