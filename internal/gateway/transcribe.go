package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/voxterview/voxterview/internal/record"
)

// ErrEmptyTranscript means the service processed the clip but produced no
// text. This is a soft failure distinct from a network error: the recording
// worked, the candidate just wasn't intelligible, so the right remedy is a
// redo rather than a retry of the upload.
var ErrEmptyTranscript = errors.New("gateway: transcription returned no text")

// Transcription is the service's answer for one uploaded clip.
type Transcription struct {
	// Text is the recognised speech.
	Text string

	// TranscriptID is the backend's opaque handle for the stored transcript,
	// referenced later by SubmitAnswer. May be empty on older backends.
	TranscriptID string
}

// AnswerRef ties an upload to its place in the interview.
type AnswerRef struct {
	SessionID     string
	QuestionIndex int

	// Detailed requests word-level timing from the service.
	Detailed bool
}

// transcribeResponse is the wire shape of the /transcribe reply.
type transcribeResponse struct {
	Transcript   string `json:"transcript"`
	TranscriptID string `json:"transcript_id"`
}

// Transcribe uploads a clip as multipart form data and returns the recognised
// text. Callers must validate the clip first; the gateway does not re-check
// size or duration.
func (c *Client) Transcribe(ctx context.Context, clip record.Clip, ref AnswerRef) (Transcription, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("audio", "answer"+extensionFor(clip.MIMEType))
	if err != nil {
		return Transcription{}, fmt.Errorf("gateway: build multipart: %w", err)
	}
	if _, err := fw.Write(clip.Bytes); err != nil {
		return Transcription{}, fmt.Errorf("gateway: write clip: %w", err)
	}
	if ref.SessionID != "" {
		_ = mw.WriteField("session_id", ref.SessionID)
		_ = mw.WriteField("question_index", strconv.Itoa(ref.QuestionIndex))
	}
	if ref.Detailed {
		_ = mw.WriteField("detailed", "true")
	}
	if err := mw.Close(); err != nil {
		return Transcription{}, fmt.Errorf("gateway: finish multipart: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.transcribeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/transcribe"), &buf)
	if err != nil {
		return Transcription{}, fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	// The generic per-request timeout is too tight for a model-bound upload;
	// use a client without one and let the context deadline govern.
	long := *c.httpClient
	long.Timeout = 0
	resp, err := long.Do(req)
	if err != nil {
		return Transcription{}, fmt.Errorf("gateway: upload clip: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Transcription{}, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var tr transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return Transcription{}, fmt.Errorf("gateway: decode transcription: %w", err)
	}
	if strings.TrimSpace(tr.Transcript) == "" {
		return Transcription{}, ErrEmptyTranscript
	}
	return Transcription{Text: tr.Transcript, TranscriptID: tr.TranscriptID}, nil
}

// extensionFor maps a clip MIME type to an upload filename extension.
func extensionFor(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "wav"):
		return ".wav"
	case strings.Contains(mimeType, "opus"):
		return ".opus"
	case strings.Contains(mimeType, "ogg"):
		return ".ogg"
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	default:
		return ".bin"
	}
}
