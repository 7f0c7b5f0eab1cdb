package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

// mp4Head is the start of an ISO base media file with an isom brand.
var mp4Head = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p',
	'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00,
	'i', 's', 'o', 'm', 'i', 's', 'o', '2',
}

func TestProbeContentTypeHeader(t *testing.T) {
	var gets int
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets++
		}
		w.Header().Set("Content-Type", "video/webm; codecs=vp9")
	}))
	defer s.Close()

	got, err := ProbeContentType(context.Background(), s.URL+"/a")
	if err != nil {
		t.Fatalf("ProbeContentType failed: %v", err)
	}

	if got != "video/webm" {
		t.Fatalf("got mediaType %q, want %q", got, "video/webm")
	}

	if gets != 0 {
		t.Fatalf("got %d GET requests, want 0", gets)
	}
}

func TestProbeContentTypeSniff(t *testing.T) {
	var rangeHeader string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		if r.Method == http.MethodGet {
			rangeHeader = r.Header.Get("Range")
			_, _ = w.Write(mp4Head)
		}
	}))
	defer s.Close()

	got, err := ProbeContentType(context.Background(), s.URL+"/stream")
	if err != nil {
		t.Fatalf("ProbeContentType failed: %v", err)
	}

	if got != "video/mp4" {
		t.Fatalf("got mediaType %q, want %q", got, "video/mp4")
	}

	if rangeHeader != "bytes=0-260" {
		t.Fatalf("got Range %q, want %q", rangeHeader, "bytes=0-260")
	}
}

func TestProbeContentTypeExtensionFallback(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("not a media header"))
	}))
	defer s.Close()

	got, err := ProbeContentType(context.Background(), s.URL+"/movies/film.MKV")
	if err != nil {
		t.Fatalf("ProbeContentType failed: %v", err)
	}

	if got != "video/x-matroska" {
		t.Fatalf("got mediaType %q, want %q", got, "video/x-matroska")
	}
}

func TestProbeContentTypeErrors(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer s.Close()

	if _, err := ProbeContentType(context.Background(), s.URL+"/missing"); err != ErrBadStatus {
		t.Fatalf("got err %v, want %v", err, ErrBadStatus)
	}

	if _, err := ProbeContentType(context.Background(), "not a url"); err == nil {
		t.Fatalf("expected error for invalid url")
	}
}

func TestGetMimeDetailsFromPath(t *testing.T) {
	tt := []struct {
		path string
		want string
		ok   bool
	}{
		{"/a/b.mp4", "video/mp4", true},
		{"/a/b.mp3", "audio/mpeg", true},
		{"/a/b.jpg", "image/jpeg", true},
		{"/a/b", "", false},
		{"/a/b.nope", "", false},
	}

	for _, tc := range tt {
		got, err := GetMimeDetailsFromPath(tc.path)
		if (err == nil) != tc.ok {
			t.Fatalf("%s: got err %v, want ok=%v", tc.path, err, tc.ok)
		}
		if got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.path, got, tc.want)
		}
	}
}
