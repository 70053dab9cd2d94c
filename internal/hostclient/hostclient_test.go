package hostclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetBytesRetriesOn503ThenSucceeds(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, err := New(Config{InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	body, err := c.GetBytes(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("GetBytes() error = %v", err)
	}
	if string(body) != "ok" {
		t.Fatalf("body = %q, want ok", body)
	}
	if hits != 3 {
		t.Fatalf("hits = %d, want 3", hits)
	}
}

func TestGetBytesGivesUpAfterMaxRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = c.GetBytes(context.Background(), srv.URL, nil)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestGetBytesHonorsByteRange(t *testing.T) {
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("partial"))
	}))
	defer srv.Close()

	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = c.GetBytes(context.Background(), srv.URL, &ByteRange{Offset: 10, Length: 5})
	if err != nil {
		t.Fatalf("GetBytes() error = %v", err)
	}
	if gotRange != "bytes=10-14" {
		t.Fatalf("Range header = %q, want bytes=10-14", gotRange)
	}
}

func TestGetBytesDoesNotRetryOnContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(Config{MaxRetries: 5, InitialBackoff: time.Hour})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	_, err = c.GetBytes(ctx, srv.URL, nil)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if time.Since(start) > time.Second {
		t.Fatal("GetBytes() should not have waited out a full backoff after cancellation")
	}
}

var ddg2CookieRegexp = regexp.MustCompile(`^__ddg2_=[A-Za-z0-9]{16}$`)

func TestGetBytesSendsDDG2SessionCookie(t *testing.T) {
	var gotCookie, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := c.GetHTML(context.Background(), srv.URL); err != nil {
		t.Fatalf("GetHTML() error = %v", err)
	}
	if !ddg2CookieRegexp.MatchString(gotCookie) {
		t.Fatalf("Cookie header = %q, want __ddg2_=<16 alphanumerics>", gotCookie)
	}
	if gotAccept != "text/html" {
		t.Fatalf("Accept header = %q, want text/html", gotAccept)
	}

	secondCookie := gotCookie
	if _, err := c.GetHTML(context.Background(), srv.URL); err != nil {
		t.Fatalf("GetHTML() error = %v", err)
	}
	if gotCookie != secondCookie {
		t.Fatal("__ddg2_ cookie changed between requests from the same Client")
	}
}

func TestGetJSONSendsJSONAcceptHeader(t *testing.T) {
	var gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var dst map[string]any
	if err := c.GetJSON(context.Background(), srv.URL, &dst); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if gotAccept != "application/json" {
		t.Fatalf("Accept header = %q, want application/json", gotAccept)
	}
}

func TestHeadLengthFallsBackToRangedGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Range", "bytes 0-0/12345")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	n, err := c.HeadLength(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("HeadLength() error = %v", err)
	}
	if n != 12345 {
		t.Fatalf("HeadLength() = %d, want 12345", n)
	}
}
