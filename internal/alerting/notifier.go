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

// CycleSummary captures the outcome of one detection pass for the
// ops channel.
type CycleSummary struct {
	RanAt          time.Time
	SymbolsTracked int
	SymbolsFired   int
	EventsTotal    int
	TopSymbol      string
	TopScore       decimal.Decimal
	ReportsSent    int
	ReportErrors   int
}

// Notifier pushes cycle summaries to an ops channel.
type Notifier interface {
	Notify(ctx context.Context, summary CycleSummary) error
}

// TelegramNotifier posts summaries through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs the Telegram ops notifier.
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

// Notify posts the rendered summary via sendMessage.
func (n *TelegramNotifier) Notify(ctx context.Context, summary CycleSummary) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderSummary(summary),
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
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram replied ok=false")
		}
	}

	n.logger.Info().Time("ran_at", summary.RanAt).
		Int("events", summary.EventsTotal).
		Int("reports", summary.ReportsSent).
		Msg("cycle summary sent (Telegram)")
	return nil
}

func renderSummary(summary CycleSummary) string {
	builder := strings.Builder{}
	builder.WriteString("[Spikewatcher Cycle]\n")
	builder.WriteString(fmt.Sprintf("Ran: %s UTC\n", summary.RanAt.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Symbols tracked: %d\n", summary.SymbolsTracked))
	builder.WriteString(fmt.Sprintf("Symbols with events: %d\n", summary.SymbolsFired))
	builder.WriteString(fmt.Sprintf("Events: %d\n", summary.EventsTotal))
	if summary.TopSymbol != "" {
		builder.WriteString(fmt.Sprintf("Top symbol: %s (score %s)\n", summary.TopSymbol, summary.TopScore.StringFixed(2)))
	}
	builder.WriteString(fmt.Sprintf("Reports sent: %d\n", summary.ReportsSent))
	if summary.ReportErrors > 0 {
		builder.WriteString(fmt.Sprintf("Report errors: %d\n", summary.ReportErrors))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
