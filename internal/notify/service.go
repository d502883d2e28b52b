// Package notify pushes run outcomes to Telegram. Notification failures are
// reported to the caller for logging but must never fail a rename run.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aninamer/internal/config"
)

const defaultBaseURL = "https://api.telegram.org"

// Service is the notification surface exposed to the monitor and CLI.
type Service interface {
	NotifyPlanned(ctx context.Context, dir, seriesTitle string, moveCount int) error
	NotifyApplied(ctx context.Context, dir, seriesTitle string, moveCount int) error
	NotifyFailed(ctx context.Context, dir, reason string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a Telegram-backed service, or a noop when Telegram is
// not configured.
func NewService(cfg *config.Config) Service {
	tg := cfg.Telegram
	if !tg.Enabled || strings.TrimSpace(tg.BotToken) == "" || strings.TrimSpace(tg.ChatID) == "" {
		return noopService{}
	}
	timeout := time.Duration(tg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &telegramService{
		baseURL: defaultBaseURL,
		token:   strings.TrimSpace(tg.BotToken),
		chatID:  strings.TrimSpace(tg.ChatID),
		client:  &http.Client{Timeout: timeout},
	}
}

type telegramService struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
}

func (s *telegramService) NotifyPlanned(ctx context.Context, dir, seriesTitle string, moveCount int) error {
	return s.send(ctx, fmt.Sprintf("📋 Planned: %s\n%s (%d moves)", seriesTitle, dir, moveCount))
}

func (s *telegramService) NotifyApplied(ctx context.Context, dir, seriesTitle string, moveCount int) error {
	return s.send(ctx, fmt.Sprintf("✅ Renamed: %s\n%s (%d moves)", seriesTitle, dir, moveCount))
}

func (s *telegramService) NotifyFailed(ctx context.Context, dir, reason string) error {
	return s.send(ctx, fmt.Sprintf("❌ Failed: %s\n%s", dir, reason))
}

func (s *telegramService) TestNotification(ctx context.Context) error {
	return s.send(ctx, "aninamer test notification")
}

func (s *telegramService) send(ctx context.Context, text string) error {
	if s == nil || s.client == nil {
		return nil
	}
	payload, err := json.Marshal(map[string]string{
		"chat_id": s.chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("encode telegram payload: %w", err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(s.baseURL, "/"), s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyPlanned(context.Context, string, string, int) error { return nil }
func (noopService) NotifyApplied(context.Context, string, string, int) error { return nil }
func (noopService) NotifyFailed(context.Context, string, string) error       { return nil }
func (noopService) TestNotification(context.Context) error                   { return nil }
