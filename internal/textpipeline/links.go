package textpipeline

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractLinks parses html leniently — invalid markup is recovered from,
// not rejected, the way the teacher's GoqueryParser tolerates broken pages —
// and resolves every <a href> against baseURL following spec's exact rule
// set. Output preserves document order; duplicates are intentionally left
// in place, since deduplication is the frontier's job, not the parser's.
func ExtractLinks(html string, baseURL string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var links []string
	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		if resolved, ok := resolveHref(baseURL, href); ok {
			links = append(links, resolved)
		}
	})
	return links
}

func resolveHref(baseURL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" ||
		strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") {
		return "", false
	}

	var resolved string
	switch {
	case strings.Contains(href, "://"):
		resolved = href
	case strings.HasPrefix(href, "/"):
		resolved = schemeAndAuthority(baseURL) + href
	default:
		base := baseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		resolved = base + href
	}

	if strings.HasPrefix(resolved, "http://") || strings.HasPrefix(resolved, "https://") {
		return resolved, true
	}
	return "", false
}

// schemeAndAuthority returns the "scheme://host[:port]" prefix of url,
// matching the distilled source's get_base_url/domain-substring approach
// rather than a full net/url parse — the inputs here are always
// "<scheme>://<...>" by construction (the frontier never hands a bare
// relative path to extract_links as baseURL), so a literal scan suffices.
func schemeAndAuthority(url string) string {
	idx := strings.Index(url, "://")
	if idx < 0 {
		return url
	}
	rest := url[idx+3:]
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		rest = rest[:slash]
	}
	return url[:idx+3] + rest
}
