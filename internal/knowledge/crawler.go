package knowledge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Crawler walks the product site breadth-first, staying on the start
// host, and feeds extracted page text into a Base.
type Crawler struct {
	client   *http.Client
	maxPages int
	delay    time.Duration
}

// NewCrawler creates a crawler capped at maxPages.
func NewCrawler(maxPages int) *Crawler {
	return &Crawler{
		client:   &http.Client{Timeout: 20 * time.Second},
		maxPages: maxPages,
		delay:    200 * time.Millisecond,
	}
}

// Crawl fetches startURL and same-host pages reachable from it, storing
// extracted text into base. Fetch errors on individual pages are logged
// and skipped.
func (c *Crawler) Crawl(ctx context.Context, startURL string, base *Base) error {
	start, err := url.Parse(startURL)
	if err != nil {
		return fmt.Errorf("parse start url: %w", err)
	}

	queue := []string{start.String()}
	seen := map[string]bool{start.String(): true}
	fetched := 0

	for len(queue) > 0 && fetched < c.maxPages {
		if err := ctx.Err(); err != nil {
			return err
		}
		pageURL := queue[0]
		queue = queue[1:]

		text, links, err := c.fetch(ctx, pageURL)
		if err != nil {
			slog.Warn("crawler: fetch failed", "url", pageURL, "error", err)
			continue
		}
		fetched++
		base.Put(pageURL, text)
		slog.Debug("crawler: fetched page", "url", pageURL, "text_len", len(text))

		for _, link := range links {
			resolved := resolveLink(start, pageURL, link)
			if resolved == "" || seen[resolved] {
				continue
			}
			seen[resolved] = true
			queue = append(queue, resolved)
		}

		if c.delay > 0 && len(queue) > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.delay):
			}
		}
	}

	slog.Info("crawler: done", "pages", fetched)
	return base.Save()
}

func (c *Crawler) fetch(ctx context.Context, pageURL string) (string, []string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("User-Agent", "supportbot-crawler/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "text/html") {
		return "", nil, fmt.Errorf("skipping content type %s", ct)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", nil, err
	}
	return ExtractText(doc), ExtractLinks(doc), nil
}

// resolveLink makes link absolute against pageURL and returns "" for
// off-host or non-http targets.
func resolveLink(start *url.URL, pageURL, link string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	u, err := base.Parse(link)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if u.Host != start.Host {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

// ExtractText walks the DOM collecting visible text, skipping script
// and style subtrees.
func ExtractText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

// ExtractLinks returns every href found in anchor tags.
func ExtractLinks(n *html.Node) []string {
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && attr.Val != "" {
					links = append(links, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return links
}
