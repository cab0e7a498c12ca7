// Package transcription calls a Whisper-compatible speech-to-text endpoint.
package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"manuscript-ingest/config"
	"mime/multipart"
	"net/http"
	"strings"
)

var ErrMissingCredential = errors.New("transcription API key not configured")

const maxErrorBody = 4 << 10

// GatewayError is returned when the provider answers with a non-2xx status.
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("transcription gateway returned %d", e.StatusCode)
	}
	return fmt.Sprintf("transcription gateway returned %d: %s", e.StatusCode, e.Body)
}

type Gateway interface {
	CheckCredentials() error
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

type Client struct {
	httpClient *http.Client
	url        string
	apiKey     string
	model      string
	language   string
}

func NewClient(cfg config.Transcription, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		httpClient: httpClient,
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		language:   cfg.Language,
	}
}

func (c *Client) CheckCredentials() error {
	if strings.TrimSpace(c.apiKey) == "" {
		return ErrMissingCredential
	}
	return nil
}

// Transcribe uploads the audio and returns the plain-text transcription.
// The request is bounded by ctx; callers set the deadline.
func (c *Client) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if err := c.CheckCredentials(); err != nil {
		return "", err
	}

	body, contentType, err := c.buildForm(filename, audio)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call transcription gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &GatewayError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read transcription response: %w", err)
	}
	return strings.TrimSpace(string(text)), nil
}

func (c *Client) buildForm(filename string, audio io.Reader) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, "", fmt.Errorf("read audio: %w", err)
	}

	fields := [][2]string{
		{"model", c.model},
		{"language", c.language},
		{"response_format", "text"},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}
