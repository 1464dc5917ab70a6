package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notifier pushes an alert to an external channel.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// TelegramNotifier delivers alerts through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram channel.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify renders the alert as text and calls the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, alert Alert) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(alert),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().
		Str("address", alert.Address).
		Int("score", alert.RiskScore).
		Str("level", alert.RiskLevel).
		Msg("alert delivered (Telegram)")
	return nil
}

func renderMessage(alert Alert) string {
	builder := strings.Builder{}
	builder.WriteString("[Risk Sentinel Alert]\n")
	builder.WriteString(fmt.Sprintf("Address: %s\n", alert.Address))
	builder.WriteString(fmt.Sprintf("Score: %d (%s, confidence %s)\n", alert.RiskScore, alert.RiskLevel, alert.Confidence))
	if alert.Reason != "" {
		builder.WriteString(fmt.Sprintf("Trigger: %s\n", alert.Reason))
	}
	for _, finding := range alert.KeyFindings {
		builder.WriteString(fmt.Sprintf("- %s\n", finding))
	}
	if alert.TxHash != "" {
		builder.WriteString(fmt.Sprintf("Report tx: %s\n", alert.TxHash))
	}
	if alert.ExplorerURL != "" {
		builder.WriteString(alert.ExplorerURL)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
