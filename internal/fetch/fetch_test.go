package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGet_headers(t *testing.T) {
	var gotUA, gotReferer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := New(Config{Referer: "http://origin.example/"})
	res, err := f.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Body) != "ok" {
		t.Errorf("body = %q", res.Body)
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotReferer != "http://origin.example/" {
		t.Errorf("Referer = %q", gotReferer)
	}
}

func TestGet_non2xxIsFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	f := New(Config{})
	_, err := f.Get(context.Background(), server.URL)
	fe, ok := err.(*FetchError)
	if !ok {
		t.Fatalf("expected *FetchError, got %T (%v)", err, err)
	}
	if fe.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d", fe.StatusCode)
	}
}

func TestHead_returnsStatusWithoutError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	f := New(Config{})
	code, err := f.Head(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}
	if code != http.StatusForbidden {
		t.Errorf("code = %d", code)
	}
}

func TestRange_requestsFirstKiB(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Range"); got != "bytes=0-1023" {
			t.Errorf("Range = %q", got)
		}
		w.Header().Set("Content-Type", "video/mp2t")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(bytes.Repeat([]byte{0x47}, 188))
	}))
	defer server.Close()

	f := New(Config{})
	res, err := f.Range(context.Background(), server.URL, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusPartialContent {
		t.Errorf("status = %d", res.StatusCode)
	}
	if len(res.Body) != 188 {
		t.Errorf("body len = %d", len(res.Body))
	}
	if res.ContentType != "video/mp2t" {
		t.Errorf("content type = %q", res.ContentType)
	}
}

func TestGet_gzipBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			t.Errorf("Accept-Encoding = %q", r.Header.Get("Accept-Encoding"))
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte("#EXTM3U\n"))
		gz.Close()
	}))
	defer server.Close()

	f := New(Config{})
	text, err := f.Text(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}
	if text != "#EXTM3U\n" {
		t.Errorf("text = %q", text)
	}
}

func TestGet_timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	f := New(Config{Timeout: 50 * time.Millisecond})
	_, err := f.Get(context.Background(), server.URL)
	if _, ok := err.(*FetchError); !ok {
		t.Fatalf("expected *FetchError on timeout, got %T (%v)", err, err)
	}
}

func TestJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"title":"A"},{"title":"B"}]`))
	}))
	defer server.Close()

	f := New(Config{})
	var out []struct {
		Title string `json:"title"`
	}
	if err := f.JSON(context.Background(), server.URL, &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0].Title != "A" {
		t.Errorf("out = %+v", out)
	}
}
