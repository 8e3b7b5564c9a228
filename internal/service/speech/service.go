package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/zhouzirui/daybook/backend/internal/config"
)

// ErrNotConfigured 未配置转写服务密钥
var ErrNotConfigured = errors.New("speech api key not configured")

const (
	audioFileName    = "recording.webm"
	audioContentType = "audio/webm"
	maxErrorBody     = 64 << 10
)

// Service 语音转写服务，对接 OpenAI 兼容的 /audio/transcriptions 接口
type Service struct {
	cfg        config.SpeechConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewService 创建转写服务实例，超时取自配置
func NewService(cfg config.SpeechConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "speech"),
	}
}

// Enabled 表示是否可以发起转写
func (s *Service) Enabled() bool {
	return s != nil && s.cfg.Enabled()
}

// Transcribe 上传 webm 音频并返回识别文本
func (s *Service) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if !s.Enabled() {
		return "", ErrNotConfigured
	}
	if len(audio) == 0 {
		return "", ErrNoAudio
	}

	body, contentType, err := buildTranscriptionForm(audio, s.cfg.Model)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", providerError(resp)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}

	s.logger.Debug("audio transcribed", "bytes", len(audio), "chars", len(result.Text))
	return result.Text, nil
}

// ValidateKey 通过列出模型校验 key 是否可用。
// 返回 false 且 err 为 nil 表示服务端拒绝了该 key。
func (s *Service) ValidateKey(ctx context.Context, key string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/models", nil)
	if err != nil {
		return false, fmt.Errorf("build models request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("models request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, nil
	}
	s.logger.Info("api key rejected", "status", resp.StatusCode)
	return false, nil
}

func buildTranscriptionForm(audio []byte, model string) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, audioFileName))
	header.Set("Content-Type", audioContentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("write audio: %w", err)
	}
	if err := mw.WriteField("model", model); err != nil {
		return nil, "", fmt.Errorf("write model field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// providerError 提取 {"error":{"message":...}}，失败时退回状态文本
func providerError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(raw, &payload); err == nil {
		msg = strings.TrimSpace(payload.Error.Message)
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("speech api error: %s", msg)
}
