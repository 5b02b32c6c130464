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
	"github.com/shopspring/decimal"
)

// Notification 描述一次钱包评分变化。
type Notification struct {
	At            time.Time
	Address       string
	Chain         string
	ScoreType     string
	PreviousScore decimal.Decimal
	Score         decimal.Decimal
	Threshold     decimal.Decimal
	MintedScore   uint16
	Version       int
	Channels      []string
	AdditionalMsg string
}

// Delta is the signed change from the previous score.
func (n Notification) Delta() decimal.Decimal {
	return n.Score.Sub(n.PreviousScore)
}

// Direction classifies the change as up, down or flat.
func (n Notification) Direction() string {
	switch n.Delta().Sign() {
	case 1:
		return "up"
	case -1:
		return "down"
	default:
		return "flat"
	}
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
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

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
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
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("address", note.Address).
		Str("chain", note.Chain).
		Str("direction", note.Direction()).
		Str("channels", strings.Join(note.Channels, ",")).
		Msg("告警已发送 (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Wallet Score Change]\n")
	builder.WriteString(fmt.Sprintf("Wallet: %s (%s)\n", note.Address, note.Chain))
	if note.ScoreType != "" {
		builder.WriteString(fmt.Sprintf("Type: %s\n", note.ScoreType))
	}
	builder.WriteString(fmt.Sprintf("Score: %s -> %s (%s, threshold %s)\n",
		note.PreviousScore.StringFixed(4), note.Score.StringFixed(4), signed(note.Delta()), note.Threshold.StringFixed(4)))
	builder.WriteString(fmt.Sprintf("Minted: %d, version %d\n", note.MintedScore, note.Version))
	builder.WriteString(fmt.Sprintf("Direction: %s\n", note.Direction()))
	builder.WriteString(fmt.Sprintf("At: %s UTC\n", note.At.UTC().Format(time.RFC3339)))
	if len(note.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(note.Channels, ",")))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

func signed(d decimal.Decimal) string {
	if d.Sign() > 0 {
		return "+" + d.StringFixed(4)
	}
	return d.StringFixed(4)
}

var _ Notifier = (*TelegramNotifier)(nil)
