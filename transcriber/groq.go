package transcriber

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	groqURL   = "https://api.groq.com/openai/v1/audio/transcriptions"
	groqModel = "whisper-large-v3-turbo"

	// Segments above this no-speech probability are dropped.
	noSpeechCutoff = 0.8
)

type groqResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text         string  `json:"text"`
		NoSpeechProb float64 `json:"no_speech_prob"`
	} `json:"segments"`
}

func NewGroq(apiKey, lang string, timeout time.Duration) *Remote {
	r := newRemote("groq", groqURL, apiKey, groqModel, lang, timeout)
	r.fields["response_format"] = "verbose_json"
	r.parse = parseGroq
	return r
}

// parseGroq rebuilds the text from segments the model is confident
// contain speech.
func parseGroq(body []byte) (string, error) {
	var resp groqResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if len(resp.Segments) == 0 {
		return resp.Text, nil
	}
	var parts []string
	for _, seg := range resp.Segments {
		if seg.NoSpeechProb > noSpeechCutoff {
			continue
		}
		parts = append(parts, strings.TrimSpace(seg.Text))
	}
	return strings.Join(parts, " "), nil
}
