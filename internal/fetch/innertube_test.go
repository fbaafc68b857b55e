package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPickCaptionTrack(t *testing.T) {
	manual := func(code, url string) captionTrack {
		return captionTrack{BaseURL: url, LanguageCode: code}
	}
	asr := func(code, url string) captionTrack {
		return captionTrack{BaseURL: url, LanguageCode: code, Kind: "asr"}
	}

	cases := []struct {
		name   string
		tracks []captionTrack
		lang   string
		want   string
	}{
		{
			name:   "manual lang beats asr lang",
			tracks: []captionTrack{asr("en", "asr-en"), manual("en", "manual-en")},
			lang:   "en",
			want:   "manual-en",
		},
		{
			name:   "lang prefix matches regional variant",
			tracks: []captionTrack{asr("en", "asr-en"), manual("en-GB", "manual-en-gb")},
			lang:   "en",
			want:   "manual-en-gb",
		},
		{
			name:   "any manual beats asr in lang",
			tracks: []captionTrack{asr("en", "asr-en"), manual("fr", "manual-fr")},
			lang:   "en",
			want:   "manual-fr",
		},
		{
			name:   "asr in lang when no manual exists",
			tracks: []captionTrack{asr("de", "asr-de"), asr("en", "asr-en")},
			lang:   "en",
			want:   "asr-en",
		},
		{
			name:   "first track as last resort",
			tracks: []captionTrack{asr("de", "asr-de"), asr("fr", "asr-fr")},
			lang:   "en",
			want:   "asr-de",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := pickCaptionTrack(tc.tracks, tc.lang)
			if got.BaseURL != tc.want {
				t.Fatalf("pickCaptionTrack = %q, want %q", got.BaseURL, tc.want)
			}
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00"},
		{59.9, "00:59"},
		{65, "01:05"},
		{600, "10:00"},
		{3600, "1:00:00"},
		{3723.2, "1:02:03"},
		{-5, "00:00"},
	}
	for _, tc := range cases {
		if got := formatTimestamp(tc.seconds); got != tc.want {
			t.Fatalf("formatTimestamp(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestTranscriptJoinsTimedTextLines(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/youtubei/v1/player", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("player method = %s", r.Method)
		}
		if !strings.Contains(r.Header.Get("User-Agent"), "com.google.android.youtube") {
			t.Errorf("player User-Agent = %q", r.Header.Get("User-Agent"))
		}
		var req innertubePlayerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode player request: %v", err)
		}
		if req.VideoID != "dQw4w9WgXcQ" || req.Context.Client.ClientName != "ANDROID" {
			t.Errorf("unexpected player request: %+v", req)
		}
		fmt.Fprintf(w, `{
			"playabilityStatus": {"status": "OK"},
			"captions": {"playerCaptionsTracklistRenderer": {"captionTracks": [
				{"baseUrl": %q, "languageCode": "en", "kind": ""}
			]}}
		}`, srv.URL+"/api/timedtext")
	})
	mux.HandleFunc("/api/timedtext", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(`<?xml version="1.0" encoding="utf-8" ?><transcript>` +
			`<text start="0" dur="2.5">Hello world</text>` +
			`<text start="65.5" dur="3">Don&amp;#39;t panic</text>` +
			`<text start="120" dur="1">   </text>` +
			`<text start="3723.2" dur="1">Third line</text>` +
			`</transcript>`))
	})

	t.Setenv("YOUTUBE_API_KEY", "")
	t.Setenv("YOUTUBE_INNERTUBE_BASE_URL", srv.URL)
	t.Setenv("EXTERNAL_FETCH_ENABLED", "")

	client, err := NewYouTubeClient(newFetchTestLogger(t))
	if err != nil {
		t.Fatalf("NewYouTubeClient: %v", err)
	}

	text, err := client.Transcript(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	want := "[00:00] Hello world\n[01:05] Don't panic\n[1:02:03] Third line"
	if text != want {
		t.Fatalf("Transcript = %q, want %q", text, want)
	}
}

func TestTranscriptUnplayableVideo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"playabilityStatus": {"status": "LOGIN_REQUIRED", "reason": "Sign in to confirm your age"}}`))
	}))
	defer srv.Close()

	t.Setenv("YOUTUBE_API_KEY", "")
	t.Setenv("YOUTUBE_INNERTUBE_BASE_URL", srv.URL)
	t.Setenv("EXTERNAL_FETCH_ENABLED", "")

	client, err := NewYouTubeClient(newFetchTestLogger(t))
	if err != nil {
		t.Fatalf("NewYouTubeClient: %v", err)
	}

	_, err = client.Transcript(context.Background(), "restricted01")
	var typed *Error
	if !errors.As(err, &typed) || typed.Code != ErrorUnavailable {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if !strings.Contains(typed.Message, "LOGIN_REQUIRED") {
		t.Fatalf("message should carry playability status, got %q", typed.Message)
	}
}

func TestTranscriptNoCaptionTracks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"playabilityStatus": {"status": "OK"}}`))
	}))
	defer srv.Close()

	t.Setenv("YOUTUBE_API_KEY", "")
	t.Setenv("YOUTUBE_INNERTUBE_BASE_URL", srv.URL)
	t.Setenv("EXTERNAL_FETCH_ENABLED", "")

	client, err := NewYouTubeClient(newFetchTestLogger(t))
	if err != nil {
		t.Fatalf("NewYouTubeClient: %v", err)
	}

	_, err = client.Transcript(context.Background(), "nocaptions01")
	var typed *Error
	if !errors.As(err, &typed) || typed.Code != ErrorUnavailable {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestTranscriptDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	t.Setenv("YOUTUBE_API_KEY", "")
	t.Setenv("YOUTUBE_INNERTUBE_BASE_URL", srv.URL)
	t.Setenv("EXTERNAL_FETCH_ENABLED", "")

	client, err := NewYouTubeClient(newFetchTestLogger(t))
	if err != nil {
		t.Fatalf("NewYouTubeClient: %v", err)
	}

	_, err = client.Transcript(context.Background(), "badrequest01")
	var typed *Error
	if !errors.As(err, &typed) || typed.Code != ErrorHTTP || typed.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected http_error with status 400, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("player endpoint called %d times, want 1", calls)
	}
}

func TestTranscriptRetriesServerErrors(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/youtubei/v1/player", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "backend unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, `{
			"playabilityStatus": {"status": "OK"},
			"captions": {"playerCaptionsTracklistRenderer": {"captionTracks": [
				{"baseUrl": %q, "languageCode": "en", "kind": "asr"}
			]}}
		}`, srv.URL+"/api/timedtext")
	})
	mux.HandleFunc("/api/timedtext", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<transcript><text start="1" dur="2">Recovered</text></transcript>`))
	})

	t.Setenv("YOUTUBE_API_KEY", "")
	t.Setenv("YOUTUBE_INNERTUBE_BASE_URL", srv.URL)
	t.Setenv("EXTERNAL_FETCH_ENABLED", "")

	client, err := NewYouTubeClient(newFetchTestLogger(t))
	if err != nil {
		t.Fatalf("NewYouTubeClient: %v", err)
	}

	text, err := client.Transcript(context.Background(), "flaky0123456")
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if text != "[00:01] Recovered" {
		t.Fatalf("Transcript = %q", text)
	}
	if calls != 2 {
		t.Fatalf("player endpoint called %d times, want 2", calls)
	}
}
