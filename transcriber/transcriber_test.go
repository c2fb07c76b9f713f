package transcriber

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"linuxst/audio"
)

func toneBuffer(ms int) *audio.Buffer {
	n := audio.SampleRate * ms / 1000
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/audio.SampleRate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	b := audio.NewBuffer(audio.DefaultCaptureConfig().Format())
	b.Append(audio.Chunk(pcm))
	b.Finalize()
	return b
}

func TestNetworkMetricsSum(t *testing.T) {
	m := &NetworkMetrics{
		ConnWait:   10 * time.Millisecond,
		DNS:        20 * time.Millisecond,
		TCP:        30 * time.Millisecond,
		TLS:        40 * time.Millisecond,
		ReqHeaders: 5 * time.Millisecond,
		ReqBody:    15 * time.Millisecond,
		TTFB:       50 * time.Millisecond,
		Download:   25 * time.Millisecond,
	}
	if got, want := m.Sum(), 195*time.Millisecond; got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	h := http.Header{}
	h.Set("X-Rate-Limit", "100")

	if got := firstNonEmpty(h, "X-Missing", "X-Rate-Limit"); got != "100" {
		t.Errorf("got %q, want %q", got, "100")
	}
	if got := firstNonEmpty(h, "X-A", "X-B"); got != "?" {
		t.Errorf("got %q, want %q", got, "?")
	}
}

func TestNormalize(t *testing.T) {
	for _, tt := range []struct{ in, want string }{
		{"  hello world \n", "hello world"},
		{"[BLANK_AUDIO]", ""},
		{" [BLANK_AUDIO]\n", ""},
		{"\n\n", ""},
		{"line one\nline two", "line one line two"},
	} {
		if got := normalize(tt.in); got != tt.want {
			t.Errorf("normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewSelectsEngine(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{"default local", Config{}, "whisper", false},
		{"groq key", Config{GroqKey: "k"}, "groq", false},
		{"openai key", Config{OpenAIKey: "k"}, "openai", false},
		{"explicit whisper", Config{Engine: "whisper", GroqKey: "k"}, "whisper", false},
		{"groq without key", Config{Engine: "groq"}, "", true},
		{"unknown", Config{Engine: "vosk"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if e.Name() != tt.want {
				t.Errorf("Name = %q, want %q", e.Name(), tt.want)
			}
		})
	}
}

func TestRemoteUpload(t *testing.T) {
	var gotModel, gotLang, gotAuth string
	var gotMagic []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotMagic = make([]byte, 4)
		io.ReadFull(f, gotMagic)
		w.Header().Set("x-ratelimit-remaining-requests", "99")
		io.WriteString(w, `{"text":" hello there "}`)
	}))
	defer srv.Close()

	r := newRemote("test", srv.URL, "secret", "m1", "en", time.Second)
	text, err := r.Transcribe(context.Background(), toneBuffer(500))
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello there" {
		t.Errorf("text = %q", text)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotModel != "m1" || gotLang != "en" {
		t.Errorf("model=%q language=%q", gotModel, gotLang)
	}
	if string(gotMagic) != "fLaC" {
		t.Errorf("upload magic = %q, want fLaC", gotMagic)
	}
	if r.LastMetrics() == nil {
		t.Error("LastMetrics not recorded")
	}
}

func TestRemoteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	r := newRemote("test", srv.URL, "k", "m", "", time.Second)
	_, err := r.Transcribe(context.Background(), toneBuffer(100))
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("err = %v, want API error 429", err)
	}
}

func TestParseGroqDropsNoSpeechSegments(t *testing.T) {
	body := `{"text":"hello thanks for watching","segments":[
		{"text":" hello","no_speech_prob":0.1},
		{"text":" thanks for watching","no_speech_prob":0.95}]}`
	got, err := parseGroq([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

// writeScript installs an executable shell script standing in for whisper-cli.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "whisper-cli")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestWhisperModelFallback(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "ggml-base.bin"), []byte("x"), 0o644)

	w := NewWhisper(Config{ModelDir: dir})
	p, err := w.ModelPath()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(p) != "ggml-base.bin" {
		t.Errorf("model = %s, want base fallback", p)
	}
}

func TestWhisperNoModel(t *testing.T) {
	w := NewWhisper(Config{ModelDir: t.TempDir()})
	if _, err := w.Transcribe(context.Background(), toneBuffer(100)); err == nil {
		t.Fatal("expected error without any model")
	}
}

func TestWhisperTranscribe(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "ggml-tiny.bin"), []byte("x"), 0o644)

	tests := []struct {
		name    string
		script  string
		want    string
		wantErr bool
	}{
		{"text", `echo " Hello world."`, "Hello world.", false},
		{"blank", `echo " [BLANK_AUDIO]"`, "", false},
		{"wav present", `for a; do case "$a" in *.wav) test -s "$a" || exit 3;; esac; done; echo ok`, "ok", false},
		{"failure", `echo "model load failed" >&2; exit 1`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWhisper(Config{WhisperBin: writeScript(t, tt.script), ModelDir: dir})
			got, err := w.Transcribe(context.Background(), toneBuffer(200))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFakeRecordsCalls(t *testing.T) {
	f := NewFake("  hi ", nil)
	buf := toneBuffer(100)
	got, err := f.Transcribe(context.Background(), buf)
	if err != nil || got != "hi" {
		t.Fatalf("got %q, %v", got, err)
	}
	if calls := f.Calls(); len(calls) != 1 || calls[0] != buf {
		t.Errorf("calls = %v", calls)
	}
}

func TestEnableHTTP2(t *testing.T) {
	tr := &http.Transport{}
	if !enableHTTP2(tr) {
		t.Fatal("fresh transport rejected h2")
	}
	if !strings.Contains(strings.Join(tr.TLSClientConfig.NextProtos, ","), "h2") {
		t.Errorf("NextProtos = %v", tr.TLSClientConfig.NextProtos)
	}
	// A second registration fails; the transport stays usable.
	if enableHTTP2(tr) {
		t.Error("duplicate h2 registration reported success")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	defer srv.Close()
	resp, err := (&http.Client{Transport: tr}).Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
}
