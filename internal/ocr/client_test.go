package ocr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleResponse = `{
	"regions": [
		{"lines": [
			{"words": [{"text": "hello"}, {"text": "metered"}]},
			{"words": [{"text": "world"}]}
		]},
		{"lines": [
			{"words": [{"text": "page"}, {"text": "two"}]}
		]}
	]
}`

func TestRecognize(t *testing.T) {
	var gotPath, gotQuery, gotKey, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("Ocp-Apim-Subscription-Key")
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test", time.Second)
	res, err := c.Recognize(context.Background(), []byte{0xFF, 0xD8})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}

	if gotPath != "/vision/v2.1/ocr" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotQuery != "language=unk&detectOrientation=true" {
		t.Errorf("unexpected query %s", gotQuery)
	}
	if gotKey != "sk_test" {
		t.Errorf("expected subscription key header, got %q", gotKey)
	}
	if gotContentType != "application/octet-stream" {
		t.Errorf("expected octet-stream content type, got %q", gotContentType)
	}

	// Region-major, then line, then word order, trailing separator after
	// every word including the last.
	if res.Text != "hello,metered,world,page,two," {
		t.Errorf("unexpected joined text %q", res.Text)
	}
	if res.WordCount != 5 {
		t.Errorf("expected word count 5, got %d", res.WordCount)
	}
}

func TestRecognize_TrailingSeparatorExact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"regions":[{"lines":[{"words":[{"text":"a"},{"text":"b"}]}]}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", time.Second)
	res, err := c.Recognize(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if res.Text != "a,b," {
		t.Errorf("expected exactly %q, got %q", "a,b,", res.Text)
	}
	if res.WordCount != 2 {
		t.Errorf("expected word count 2, got %d", res.WordCount)
	}
}

func TestRecognize_EmptyDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"regions":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", time.Second)
	res, err := c.Recognize(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if res.Text != "" || res.WordCount != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestRecognize_NotConfigured(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		key      string
	}{
		{"no key", "https://vision.example.com", ""},
		{"no endpoint", "", "sk"},
		{"neither", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.endpoint, tt.key, time.Second)
			_, err := c.Recognize(context.Background(), []byte("x"))
			if !errors.Is(err, ErrNotConfigured) {
				t.Errorf("expected ErrNotConfigured, got %v", err)
			}
		})
	}
}

func TestRecognize_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid image", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", time.Second)
	_, err := c.Recognize(context.Background(), []byte("x"))

	var rerr *RecognitionError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RecognitionError, got %v", err)
	}
	if rerr.Stage != "status" || rerr.StatusCode != http.StatusBadRequest {
		t.Errorf("unexpected error detail %+v", rerr)
	}
}

func TestRecognize_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{{not json`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", time.Second)
	_, err := c.Recognize(context.Background(), []byte("x"))

	var rerr *RecognitionError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RecognitionError, got %v", err)
	}
	if rerr.Stage != "decode" {
		t.Errorf("expected decode stage, got %s", rerr.Stage)
	}
}

func TestRecognize_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(srv.URL, "k", time.Second)
	_, err := c.Recognize(context.Background(), []byte("x"))

	var rerr *RecognitionError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RecognitionError, got %v", err)
	}
	if rerr.Stage != "transport" {
		t.Errorf("expected transport stage, got %s", rerr.Stage)
	}
}

func TestRecognize_SingleAttempt(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", time.Second)
	_, _ = c.Recognize(context.Background(), []byte("x"))

	if calls != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", calls)
	}
}
