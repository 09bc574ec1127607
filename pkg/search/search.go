// Package search builds DuckDuckGo query URLs and scrapes the HTML result
// page into an ordered list of (title, url) pairs.
package search

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const resultPageURL = "https://html.duckduckgo.com/html/"

// Result is one search hit in page order.
type Result struct {
	Title string
	URL   string
}

// QueryURL turns a search term into the DuckDuckGo HTML result page URL.
func QueryURL(term string) string {
	return resultPageURL + "?q=" + url.QueryEscape(term)
}

// ParseResults extracts the ordered result list from a DuckDuckGo HTML
// result page. Relative hrefs are resolved against base, and DuckDuckGo's
// redirect wrapper links are unwrapped to their target URL. A page without
// results yields an empty slice, not an error.
func ParseResults(page []byte, base *url.URL) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parsing result page: %w", err)
	}
	var results []Result
	doc.Find("a.result__a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		title := strings.Join(strings.Fields(sel.Text()), " ")
		if title == "" {
			return
		}
		target := resolveHref(base, href)
		if target == "" {
			return
		}
		results = append(results, Result{Title: title, URL: unwrapRedirect(target)})
	})
	return results, nil
}

func resolveHref(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	return ref.String()
}

// unwrapRedirect strips DuckDuckGo's /l/?uddg=<target> click-tracking
// wrapper, returning the target URL. Anything else passes through.
func unwrapRedirect(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return rawurl
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return rawurl
}
