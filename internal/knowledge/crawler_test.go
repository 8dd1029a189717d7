package knowledge

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCrawlStaysOnHost(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>
			<h1>PandaStore</h1>
			<p>Premium app distribution.</p>
			<a href="/pricing">Pricing</a>
			<a href="https://other.example.com/away">External</a>
			<script>var hidden = "not text";</script>
		</body></html>`)
	})
	mux.HandleFunc("/pricing", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>Premium costs $9.99 per month.</p></body></html>`)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	base, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := NewCrawler(10)
	c.delay = 0

	if err := c.Crawl(context.Background(), srv.URL+"/", base); err != nil {
		t.Fatal(err)
	}

	if base.Len() != 2 {
		t.Fatalf("pages = %d, want 2 (external link must be skipped)", base.Len())
	}
	ctxText := base.Context()
	if !strings.Contains(ctxText, "PandaStore") || !strings.Contains(ctxText, "$9.99") {
		t.Errorf("context missing page text: %q", ctxText)
	}
	if strings.Contains(ctxText, "not text") {
		t.Error("script content leaked into extracted text")
	}
}

func TestCrawlRespectsPageCap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Every page links to the next one.
		n := 0
		fmt.Sscanf(r.URL.Query().Get("n"), "%d", &n)
		fmt.Fprintf(w, `<html><body><p>page %d</p><a href="/?n=%d">next</a></body></html>`, n, n+1)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	base, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := NewCrawler(3)
	c.delay = 0

	if err := c.Crawl(context.Background(), srv.URL+"/", base); err != nil {
		t.Fatal(err)
	}
	if base.Len() != 3 {
		t.Errorf("pages = %d, want 3", base.Len())
	}
}

func TestBasePersistence(t *testing.T) {
	dir := t.TempDir()
	base, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	base.Put("https://example.com/", "hello world")
	if err := base.Save(); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reloaded.Context(), "hello world") {
		t.Errorf("reloaded context = %q", reloaded.Context())
	}
}
