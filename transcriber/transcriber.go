package transcriber

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"linuxst/audio"
)

// Engine turns a finished recording into text. An empty string with a nil
// error means the engine heard no speech.
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, buf *audio.Buffer) (string, error)
}

type Config struct {
	Engine   string // whisper, groq, openai
	Language string

	WhisperBin string
	ModelDir   string
	Models     []string
	Threads    int

	GroqKey   string
	OpenAIKey string

	Timeout time.Duration
}

type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

func (m *NetworkMetrics) String() string {
	reuse := "new"
	if m.ConnReused {
		reuse = "reused"
	}
	return fmt.Sprintf("conn=%s dns=%dms tls=%dms ttfb=%dms total=%dms",
		reuse, m.DNS.Milliseconds(), m.TLS.Milliseconds(), m.TTFB.Milliseconds(), m.Total.Milliseconds())
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

const blankAudio = "[BLANK_AUDIO]"

// normalize trims engine output and maps silence markers to "".
func normalize(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, blankAudio, ""))
	return strings.Join(strings.Fields(text), " ")
}

// New builds the engine named by cfg.Engine. An empty name picks a remote
// engine when its key is set and falls back to the local whisper CLI.
func New(cfg Config) (Engine, error) {
	name := cfg.Engine
	if name == "" {
		switch {
		case cfg.GroqKey != "":
			name = "groq"
		case cfg.OpenAIKey != "":
			name = "openai"
		default:
			name = "whisper"
		}
	}

	switch name {
	case "whisper":
		return NewWhisper(cfg), nil
	case "groq":
		if cfg.GroqKey == "" {
			return nil, fmt.Errorf("groq engine requires GROQ_API_KEY")
		}
		return NewGroq(cfg.GroqKey, cfg.Language, cfg.Timeout), nil
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("openai engine requires OPENAI_API_KEY")
		}
		return NewOpenAI(cfg.OpenAIKey, cfg.Language, cfg.Timeout), nil
	}
	return nil, fmt.Errorf("unknown transcription engine %q", name)
}
