package transcriber

import "time"

const (
	openAIURL   = "https://api.openai.com/v1/audio/transcriptions"
	openAIModel = "gpt-4o-transcribe"
)

func NewOpenAI(apiKey, lang string, timeout time.Duration) *Remote {
	r := newRemote("openai", openAIURL, apiKey, openAIModel, lang, timeout)
	r.fields["response_format"] = "json"
	return r
}
