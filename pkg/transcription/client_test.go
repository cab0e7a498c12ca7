package transcription_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"manuscript-ingest/config"
	"manuscript-ingest/pkg/transcription"
)

func newClient(url, key string) *transcription.Client {
	return transcription.NewClient(config.Transcription{
		URL:      url,
		APIKey:   key,
		Model:    "whisper-1",
		Language: "it",
	}, nil)
}

func TestTranscribeSendsMultipartForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "it", r.FormValue("language"))
		assert.Equal(t, "text", r.FormValue("response_format"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "sample.mp3", hdr.Filename)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "audio-bytes", string(data))

		_, _ = w.Write([]byte("Ciao mondo\n"))
	}))
	defer srv.Close()

	text, err := newClient(srv.URL, "sk-test").Transcribe(context.Background(), "sample.mp3", strings.NewReader("audio-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "Ciao mondo", text)
}

func TestTranscribeReturnsGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, "sk-test").Transcribe(context.Background(), "a.mp3", strings.NewReader("x"))
	var gwErr *transcription.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusTooManyRequests, gwErr.StatusCode)
	assert.Contains(t, gwErr.Error(), "rate limited")
}

func TestTranscribeRequiresCredential(t *testing.T) {
	c := newClient("http://unused", " ")
	assert.ErrorIs(t, c.CheckCredentials(), transcription.ErrMissingCredential)

	_, err := c.Transcribe(context.Background(), "a.mp3", strings.NewReader("x"))
	assert.ErrorIs(t, err, transcription.ErrMissingCredential)
}

func TestTranscribeHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newClient(srv.URL, "sk-test").Transcribe(ctx, "a.mp3", strings.NewReader("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
