package speech

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/daybook/backend/internal/config"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewService(config.SpeechConfig{
		APIKey:  "sk-test",
		BaseURL: srv.URL,
		Model:   "whisper-1",
		Timeout: 5 * time.Second,
	}, nil)
}

func TestTranscribeUploadsMultipartForm(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "whisper-1", r.FormValue("model"))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "recording.webm", header.Filename)
		assert.Equal(t, "audio/webm", header.Header.Get("Content-Type"))
		data, _ := io.ReadAll(file)
		assert.Equal(t, "webm-bytes", string(data))

		_ = json.NewEncoder(w).Encode(map[string]string{"text": "hello there"})
	})

	text, err := svc.Transcribe(context.Background(), []byte("webm-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
}

func TestTranscribeSurfacesProviderMessage(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid file format."}}`))
	})

	_, err := svc.Transcribe(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.Equal(t, "speech api error: Invalid file format.", err.Error())
}

func TestTranscribeFallsBackToStatusText(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := svc.Transcribe(context.Background(), []byte("x"))
	require.EqualError(t, err, "speech api error: Bad Gateway")
}

func TestTranscribeRequiresKeyAndAudio(t *testing.T) {
	unconfigured := NewService(config.SpeechConfig{BaseURL: "http://127.0.0.1:1"}, nil)
	_, err := unconfigured.Transcribe(context.Background(), []byte("x"))
	assert.True(t, errors.Is(err, ErrNotConfigured))

	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty audio")
	})
	_, err = svc.Transcribe(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoAudio)
}

func TestValidateKey(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	ok, err := svc.ValidateKey(context.Background(), "good")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.ValidateKey(context.Background(), "bad")
	require.NoError(t, err)
	assert.False(t, ok)
}
