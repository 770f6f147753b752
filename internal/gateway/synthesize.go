package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultVoice is the synthesis voice used when none is configured. It is the
// piper voice id the backend ships with.
const DefaultVoice = "en_US-amy-medium"

// synthesizeRequest is the wire shape of the /synthesize call.
type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// Synthesize requests spoken audio for text and returns the raw bytes plus
// their media type. The audio is played locally; nothing is streamed.
func (c *Client) Synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	body, err := json.Marshal(synthesizeRequest{Text: text, Voice: voice})
	if err != nil {
		return nil, "", fmt.Errorf("gateway: marshal synthesize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/synthesize"), bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("gateway: synthesize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, "", &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("gateway: read synthesized audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, "", fmt.Errorf("gateway: synthesize returned no audio")
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	return audio, mimeType, nil
}
