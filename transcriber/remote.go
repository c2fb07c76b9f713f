package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"linuxst/audio"
	"linuxst/encoder"
	"linuxst/log"
)

const defaultTimeout = 60 * time.Second

// Remote uploads FLAC-encoded audio to an OpenAI-compatible
// transcription endpoint.
type Remote struct {
	name   string
	client *TracedClient
	apiURL string
	apiKey string
	model  string
	lang   string
	fields map[string]string
	parse  func(body []byte) (string, error)

	mu   sync.Mutex
	last *NetworkMetrics
}

func newRemote(name, apiURL, apiKey, model, lang string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Remote{
		name:   name,
		client: NewTracedClient(apiURL, timeout),
		apiURL: apiURL,
		apiKey: apiKey,
		model:  model,
		lang:   lang,
		fields: map[string]string{},
		parse:  parseText,
	}
}

func (r *Remote) Name() string { return r.name }

// Warm pre-opens the API connection in the background.
func (r *Remote) Warm() { go r.client.Warm() }

// LastMetrics reports timings for the most recent upload.
func (r *Remote) LastMetrics() *NetworkMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Remote) Transcribe(ctx context.Context, buf *audio.Buffer) (string, error) {
	up, err := encoder.FLAC(buf)
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", up.Filename())
	if err != nil {
		return "", err
	}
	if _, err := part.Write(up.Data); err != nil {
		return "", err
	}
	writer.WriteField("model", r.model)
	for k, v := range r.fields {
		writer.WriteField(k, v)
	}
	if r.lang != "" {
		writer.WriteField("language", r.lang)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.apiURL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.last = resp.Metrics
	r.mu.Unlock()

	remaining := firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")
	log.Infof("%s upload: %d bytes %s, encode=%dms %s ratelimit=%s/%s",
		r.name, len(up.Data), up.Format, up.Took.Milliseconds(), resp.Metrics, remaining, limit)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s API error %d: %s", r.name, resp.StatusCode, string(resp.Body))
	}
	text, err := r.parse(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s response parse error: %w", r.name, err)
	}
	return normalize(text), nil
}

func parseText(body []byte) (string, error) {
	var resp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}
