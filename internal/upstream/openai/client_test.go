package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestTranscribeParsesJSONResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("unexpected auth header: %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		_ = r.MultipartForm.RemoveAll()
		if r.FormValue("model") != "whisper-1" {
			t.Fatalf("unexpected model: %q", r.FormValue("model"))
		}
		if r.FormValue("response_format") != "json" {
			t.Fatalf("unexpected response_format: %q", r.FormValue("response_format"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"hello"}`)
	}))
	defer ts.Close()

	c := New(ts.URL, "test-key", ts.Client())
	text, err := c.Transcribe(context.Background(), strings.NewReader("audio"), "window-0000.wav", "whisper-1")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "hello" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestTranscribeParsesPlainTextResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "hello\nworld")
	}))
	defer ts.Close()

	c := New(ts.URL, "test-key", ts.Client())
	text, err := c.Transcribe(context.Background(), strings.NewReader("audio"), "window-0000.wav", "whisper-1")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "hello world" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestChatCompletionParsesContentAndUsage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":" summary "}}],"usage":{"prompt_tokens":50,"completion_tokens":10,"total_tokens":60}}`)
	}))
	defer ts.Close()

	c := New(ts.URL, "test-key", ts.Client())
	resp, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{
		Model:       "m",
		Temperature: 0,
		Messages:    []ChatMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}
	if resp.Content != "summary" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 60 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestTranscribeReturnsUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := New(ts.URL, "test-key", ts.Client())
	_, err := c.Transcribe(context.Background(), strings.NewReader("audio"), "window-0000.wav", "whisper-1")
	if err == nil {
		t.Fatal("expected error")
	}
	var upErr *Error
	if !errors.As(err, &upErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if upErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected status code: %d", upErr.StatusCode)
	}
	if !upErr.Retryable() {
		t.Fatal("429 should be retryable")
	}
}

func TestErrorRetryable(t *testing.T) {
	cases := map[int]bool{
		http.StatusBadRequest:            false,
		http.StatusUnauthorized:          false,
		http.StatusRequestEntityTooLarge: false,
		http.StatusRequestTimeout:        true,
		http.StatusTooManyRequests:       true,
		http.StatusInternalServerError:   true,
		http.StatusBadGateway:            true,
	}
	for code, want := range cases {
		if got := (&Error{StatusCode: code}).Retryable(); got != want {
			t.Fatalf("status %d: Retryable() = %v, want %v", code, got, want)
		}
	}
}

func TestTranscribeAcceptsEmptyJSONText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":""}`)
	}))
	defer ts.Close()

	text, err := New(ts.URL, "", ts.Client()).Transcribe(context.Background(), strings.NewReader("audio"), "window-0000.wav", "whisper-1")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty text, got %q", text)
	}
}

func TestObserverSeesResponseStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Fatalf("no key configured, got auth header %q", got)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	var endpoint string
	var status int
	c := New(ts.URL+"/", "", ts.Client(), WithObserver(func(e string, s int, _ time.Duration) {
		endpoint, status = e, s
	}))
	if err := c.CheckModels(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if endpoint != "models" || status != http.StatusServiceUnavailable {
		t.Fatalf("observer got %q/%d", endpoint, status)
	}
}
