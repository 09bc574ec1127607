package webclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/go2web/go2web/pkg/cache"
)

func newTestClient() *Client {
	c := New(cache.NewMemCache())
	c.ConnectTimeout = 2 * time.Second
	c.ReadTimeout = 5 * time.Second
	return c
}

func TestFetchRedirectToFinal(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/a", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/b", http.StatusFound)
	})
	r.Get("/b", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Length", "5")
		w.Write([]byte("hello"))
	})
	server := httptest.NewServer(r)
	defer server.Close()

	res, err := newTestClient().Fetch(context.Background(), server.URL+"/a", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != 200 {
		t.Errorf("status = %d", res.StatusCode)
	}
	if string(res.Body) != "hello" {
		t.Errorf("body = %q", res.Body)
	}
	if res.EffectiveURL.Path != "/b" {
		t.Errorf("effective URL = %s, want path /b", res.EffectiveURL)
	}
}

func TestFetchRedirectLoop(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/x", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/y", http.StatusMovedPermanently)
	})
	r.Get("/y", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/x", http.StatusMovedPermanently)
	})
	server := httptest.NewServer(r)
	defer server.Close()

	_, err := newTestClient().Fetch(context.Background(), server.URL+"/x", Options{})
	if !IsKind(err, KindRedirectLoop) {
		t.Fatalf("err = %v, want redirect loop", err)
	}
}

func TestFetchTooManyRedirects(t *testing.T) {
	r := chi.NewRouter()
	hops := 0
	r.Get("/hop/{n}", func(w http.ResponseWriter, req *http.Request) {
		hops++
		n := chi.URLParam(req, "n")
		http.Redirect(w, req, "/hop/"+n+"x", http.StatusFound)
	})
	server := httptest.NewServer(r)
	defer server.Close()

	_, err := newTestClient().Fetch(context.Background(), server.URL+"/hop/0", Options{})
	if !IsKind(err, KindTooManyRedirects) {
		t.Fatalf("err = %v, want too many redirects", err)
	}
	if hops != DefaultMaxHops {
		t.Errorf("served %d hops before failing, want %d", hops, DefaultMaxHops)
	}
}

func TestFetchChunkedBody(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/stream", func(w http.ResponseWriter, req *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 3; i++ {
			fmt.Fprintf(w, "part-%d;", i)
			flusher.Flush()
		}
	})
	server := httptest.NewServer(r)
	defer server.Close()

	res, err := newTestClient().Fetch(context.Background(), server.URL+"/stream", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Body) != "part-0;part-1;part-2;" {
		t.Errorf("body = %q", res.Body)
	}
}

func TestFetchFreshCacheHit(t *testing.T) {
	requests := 0
	r := chi.NewRouter()
	r.Get("/cached", func(w http.ResponseWriter, req *http.Request) {
		requests++
		w.Header().Set("Cache-Control", "max-age=60")
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("cache me"))
	})
	server := httptest.NewServer(r)
	defer server.Close()

	client := newTestClient()
	opts := Options{UseCache: true}
	first, err := client.Fetch(context.Background(), server.URL+"/cached", opts)
	if err != nil {
		t.Fatal(err)
	}
	second, err := client.Fetch(context.Background(), server.URL+"/cached", opts)
	if err != nil {
		t.Fatal(err)
	}
	if requests != 1 {
		t.Errorf("origin served %d requests, want 1", requests)
	}
	if string(first.Body) != string(second.Body) {
		t.Errorf("cached body differs: %q vs %q", first.Body, second.Body)
	}
}

func TestFetchHeuristicTTL(t *testing.T) {
	requests := 0
	r := chi.NewRouter()
	r.Get("/plain", func(w http.ResponseWriter, req *http.Request) {
		// no explicit freshness information at all
		requests++
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("body"))
	})
	server := httptest.NewServer(r)
	defer server.Close()

	opts := Options{UseCache: true}

	// a window so short the entry is stale (and validator-less, hence
	// useless) by the second fetch
	client := newTestClient()
	client.HeuristicTTL = time.Nanosecond
	client.Fetch(context.Background(), server.URL+"/plain", opts)
	client.Fetch(context.Background(), server.URL+"/plain", opts)
	if requests != 2 {
		t.Errorf("short window: origin served %d requests, want 2", requests)
	}

	requests = 0
	client = newTestClient()
	client.HeuristicTTL = time.Hour
	client.Fetch(context.Background(), server.URL+"/plain", opts)
	client.Fetch(context.Background(), server.URL+"/plain", opts)
	if requests != 1 {
		t.Errorf("long window: origin served %d requests, want 1", requests)
	}
}

func TestFetchRevalidate304(t *testing.T) {
	bodyServes := 0
	r := chi.NewRouter()
	r.Get("/validated", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		bodyServes++
		w.Header().Set("Etag", `"v1"`)
		// no-cache: stored, but every reuse must revalidate
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("validated body"))
	})
	server := httptest.NewServer(r)
	defer server.Close()

	client := newTestClient()
	opts := Options{UseCache: true}
	first, err := client.Fetch(context.Background(), server.URL+"/validated", opts)
	if err != nil {
		t.Fatal(err)
	}
	second, err := client.Fetch(context.Background(), server.URL+"/validated", opts)
	if err != nil {
		t.Fatal(err)
	}
	if bodyServes != 1 {
		t.Errorf("body transferred %d times, want 1", bodyServes)
	}
	if string(second.Body) != string(first.Body) {
		t.Errorf("revalidated body = %q, want %q", second.Body, first.Body)
	}
	if second.StatusCode != 200 {
		t.Errorf("revalidated status = %d, want 200 from stored entry", second.StatusCode)
	}
}

func TestFetchCacheBypassLeavesEntries(t *testing.T) {
	requests := 0
	r := chi.NewRouter()
	r.Get("/page", func(w http.ResponseWriter, req *http.Request) {
		requests++
		w.Header().Set("Cache-Control", "max-age=60")
		w.Write([]byte("body"))
	})
	server := httptest.NewServer(r)
	defer server.Close()

	client := newTestClient()
	if _, err := client.Fetch(context.Background(), server.URL+"/page", Options{UseCache: true}); err != nil {
		t.Fatal(err)
	}
	// bypass goes to the origin but must not evict the stored entry
	if _, err := client.Fetch(context.Background(), server.URL+"/page", Options{UseCache: false}); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Fetch(context.Background(), server.URL+"/page", Options{UseCache: true}); err != nil {
		t.Fatal(err)
	}
	if requests != 2 {
		t.Errorf("origin served %d requests, want 2 (hit, bypass, hit)", requests)
	}
}

func TestFetchClearCache(t *testing.T) {
	requests := 0
	r := chi.NewRouter()
	r.Get("/page", func(w http.ResponseWriter, req *http.Request) {
		requests++
		w.Header().Set("Cache-Control", "max-age=60")
		w.Write([]byte("body"))
	})
	server := httptest.NewServer(r)
	defer server.Close()

	client := newTestClient()
	opts := Options{UseCache: true}
	client.Fetch(context.Background(), server.URL+"/page", opts)
	if err := client.Cache.Clear(); err != nil {
		t.Fatal(err)
	}
	client.Fetch(context.Background(), server.URL+"/page", opts)
	if requests != 2 {
		t.Errorf("origin served %d requests, want 2 after clear", requests)
	}
}

func TestFetchSendsNegotiatedAccept(t *testing.T) {
	var gotAccept string
	r := chi.NewRouter()
	r.Get("/api", func(w http.ResponseWriter, req *http.Request) {
		gotAccept = req.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{}"))
	})
	server := httptest.NewServer(r)
	defer server.Close()

	res, err := newTestClient().Fetch(context.Background(), server.URL+"/api", Options{ContentType: ContentTypeJSON})
	if err != nil {
		t.Fatal(err)
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept = %q", gotAccept)
	}
	if SelectRepresentation(res) != JSON {
		t.Errorf("representation = %v, want JSON", SelectRepresentation(res))
	}
}

func TestFetchUnsupportedScheme(t *testing.T) {
	_, err := newTestClient().Fetch(context.Background(), "ftp://example.com/file", Options{})
	if !IsKind(err, KindUnsupportedScheme) {
		t.Fatalf("err = %v, want unsupported scheme", err)
	}
}

func TestFetchMalformedResponse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte("THIS IS NOT HTTP\r\n\r\n"))
		conn.Close()
	}()

	_, err = newTestClient().Fetch(context.Background(), "http://"+ln.Addr().String()+"/", Options{})
	if !IsKind(err, KindMalformedResponse) {
		t.Fatalf("err = %v, want malformed response", err)
	}
}

func TestFetchTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		// accept and never respond
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(5 * time.Second)
	}()

	client := newTestClient()
	client.ReadTimeout = 100 * time.Millisecond
	_, err = client.Fetch(context.Background(), "http://"+ln.Addr().String()+"/", Options{})
	if !IsKind(err, KindTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestFetchCancelAbortsBlockingRead(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(10 * time.Second)
	}()

	client := newTestClient()
	client.ReadTimeout = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(50*time.Millisecond, cancel)
	defer timer.Stop()

	start := time.Now()
	_, err = client.Fetch(ctx, "http://"+ln.Addr().String()+"/", Options{})
	if err == nil {
		t.Fatal("expected error from cancelled fetch")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want wrapped context.Canceled", err)
	}
	// the read must be aborted well before the 10s read deadline
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %v, read deadline was waited out", elapsed)
	}
}

func TestFetchConnectionFailure(t *testing.T) {
	// a port nothing listens on
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = newTestClient().Fetch(context.Background(), "http://"+addr+"/", Options{})
	if !IsKind(err, KindConnectionFailure) {
		t.Fatalf("err = %v, want connection failure", err)
	}
}
