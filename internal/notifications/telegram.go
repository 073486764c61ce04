package notifications

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"lino-backend/internal/config"
)

// SendTelegramNotification pings the operator chat. Best-effort: callers
// ignore the returned error or log it at warn level.
func SendTelegramNotification(message string, cfg *config.Config) error {
	if cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == "" {
		return nil
	}

	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", cfg.Telegram.BotToken)

	form := url.Values{}
	form.Set("chat_id", cfg.Telegram.ChatID)
	form.Set("text", message)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(endpoint, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if !gjson.GetBytes(body, "ok").Bool() {
		return fmt.Errorf("telegram API error: %s", gjson.GetBytes(body, "description").String())
	}

	return nil
}
