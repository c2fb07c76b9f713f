package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"linuxst/audio"
	"linuxst/log"

	"github.com/google/uuid"
)

const (
	defaultWhisperBin = "whisper-cli"
	defaultThreads    = 4
)

var defaultModels = []string{"tiny", "base"}

// Whisper runs the whisper.cpp command line tool on a temporary WAV file.
type Whisper struct {
	bin      string
	modelDir string
	models   []string
	lang     string
	threads  int

	once      sync.Once
	modelPath string
	modelErr  error
}

func NewWhisper(cfg Config) *Whisper {
	w := &Whisper{
		bin:      cfg.WhisperBin,
		modelDir: cfg.ModelDir,
		models:   cfg.Models,
		lang:     cfg.Language,
		threads:  cfg.Threads,
	}
	if w.bin == "" {
		w.bin = defaultWhisperBin
	}
	if len(w.models) == 0 {
		w.models = defaultModels
	}
	if w.lang == "" {
		w.lang = "en"
	}
	if w.threads <= 0 {
		w.threads = defaultThreads
	}
	return w
}

func (w *Whisper) Name() string { return "whisper" }

// ModelPath resolves the first available model, trying each configured
// name in order. The result is cached for the life of the process.
func (w *Whisper) ModelPath() (string, error) {
	w.once.Do(func() {
		var tried []string
		for _, m := range w.models {
			p := m
			if !strings.ContainsRune(m, os.PathSeparator) {
				p = filepath.Join(w.modelDir, "ggml-"+m+".bin")
			}
			if _, err := os.Stat(p); err == nil {
				if len(tried) > 0 {
					log.Warnf("whisper model fallback: using %s", p)
				}
				w.modelPath = p
				return
			}
			tried = append(tried, p)
		}
		w.modelErr = fmt.Errorf("no whisper model found (tried %s)", strings.Join(tried, ", "))
	})
	return w.modelPath, w.modelErr
}

func (w *Whisper) Transcribe(ctx context.Context, buf *audio.Buffer) (string, error) {
	model, err := w.ModelPath()
	if err != nil {
		return "", err
	}

	wavPath := filepath.Join(os.TempDir(), "linuxst-"+uuid.NewString()+".wav")
	if err := audio.WriteWAVFile(wavPath, buf); err != nil {
		return "", fmt.Errorf("write wav: %w", err)
	}
	defer os.Remove(wavPath)

	args := []string{
		"-m", model,
		"-f", wavPath,
		"-l", w.lang,
		"-t", strconv.Itoa(w.threads),
		"-nt", "-np",
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, w.bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s: %w: %s", w.bin, err, lastLine(msg))
		}
		return "", fmt.Errorf("%s: %w", w.bin, err)
	}
	return normalize(stdout.String()), nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
