package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"futures-trailing-bot/internal/events"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifyTradeOpen     NotificationType = "trade_open"
	NotifyTradeClose    NotificationType = "trade_close"
	NotifyEmergencyExit NotificationType = "emergency_exit"
	NotifyDrawdown      NotificationType = "drawdown"
	NotifyCircuit       NotificationType = "circuit_breaker"
	NotifyError         NotificationType = "error"
)

// Notification represents a notification message
type Notification struct {
	Type       NotificationType
	Title      string
	Message    string
	Symbol     string
	Price      float64
	PnL        float64
	PnLPercent float64
	Timestamp  time.Time
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(ctx context.Context, notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans notifications out to every enabled provider
type Manager struct {
	notifiers []Notifier
	logger    zerolog.Logger
	timeout   time.Duration
}

// NewManager creates a new notification manager
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		notifiers: make([]Notifier, 0),
		logger:    logger.With().Str("component", "notification").Logger(),
		timeout:   10 * time.Second,
	}
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send delivers to all enabled providers and joins their errors
func (m *Manager) Send(ctx context.Context, notification *Notification) error {
	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now()
	}

	var errs []error
	for _, n := range m.notifiers {
		if !n.IsEnabled() {
			continue
		}
		if err := n.Send(ctx, notification); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Attach turns lifecycle events on bus into notifications. Delivery failures
// are logged.
func (m *Manager) Attach(bus *events.EventBus) {
	for _, t := range []events.EventType{
		events.EventPositionOpened,
		events.EventPositionClosed,
		events.EventEmergencyExit,
		events.EventDrawdownAlert,
		events.EventCircuitTripped,
	} {
		bus.Subscribe(t, m.handle)
	}
}

func (m *Manager) handle(e events.Event) {
	n := FromEvent(e)
	if n == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.Send(ctx, n); err != nil {
		m.logger.Warn().Err(err).Str("event", string(e.Type)).Msg("Notification delivery failed")
	}
}

// FromEvent renders a lifecycle event, or returns nil for events that are
// not notified.
func FromEvent(e events.Event) *Notification {
	str := func(k string) string { s, _ := e.Data[k].(string); return s }
	num := func(k string) float64 { f, _ := e.Data[k].(float64); return f }

	symbol := str("symbol")
	n := &Notification{Symbol: symbol, Timestamp: e.Timestamp}

	switch e.Type {
	case events.EventPositionOpened:
		n.Type = NotifyTradeOpen
		n.Title = fmt.Sprintf("Position Opened: %s", symbol)
		n.Message = fmt.Sprintf("%s %.8g %s @ %.4f\nSL: %.4f | TP: %.4f",
			strings.ToUpper(str("side")), num("size"), symbol, num("entry_price"), num("stop_loss"), num("take_profit"))
		n.Price = num("entry_price")
	case events.EventPositionClosed:
		n.Type = NotifyTradeClose
		n.Title = fmt.Sprintf("Position Closed: %s", symbol)
		n.PnL, n.PnLPercent = num("pnl"), num("pnl_percent")
		n.Price = num("exit_price")
		n.Message = fmt.Sprintf("Entry: %.4f -> Exit: %.4f\nP&L: %.4f (%.2f%%)\nReason: %s",
			num("entry_price"), n.Price, n.PnL, n.PnLPercent, str("reason"))
	case events.EventEmergencyExit:
		n.Type = NotifyEmergencyExit
		n.Title = fmt.Sprintf("Emergency Exit: %s", symbol)
		n.Message = fmt.Sprintf("Closed %.8g with a %s market order\nReason: %s",
			num("quantity"), strings.ToUpper(str("close_side")), str("reason"))
	case events.EventDrawdownAlert:
		n.Type = NotifyDrawdown
		n.Title = fmt.Sprintf("Drawdown Alert: %s", symbol)
		n.Price = num("price")
		n.Message = fmt.Sprintf("%s from %.4f, peak %.4f, now %.4f",
			strings.ToUpper(str("side")), num("entry_price"), num("peak"), n.Price)
	case events.EventCircuitTripped:
		n.Type = NotifyCircuit
		n.Title = "Circuit Breaker Tripped"
		n.Message = fmt.Sprintf("New entries paused: %s", str("reason"))
	default:
		return nil
	}
	return n
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends notifications via Telegram
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	enabled  bool
	client   *http.Client
}

// TelegramConfig holds Telegram configuration
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Enabled  bool
	BaseURL  string // defaults to the public Bot API
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = telegramAPI
	}
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		enabled:  config.Enabled && config.BotToken != "" && config.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(ctx context.Context, notification *Notification) error {
	if !t.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n\n%s", notification.Title, notification.Message),
		"parse_mode": "Markdown",
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	return postJSON(ctx, t.client, url, payload, http.StatusOK)
}

// =============================================================================
// DISCORD NOTIFIER
// =============================================================================

// DiscordNotifier sends notifications via Discord webhook
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordConfig holds Discord configuration
type DiscordConfig struct {
	WebhookURL string
	Enabled    bool
}

// NewDiscordNotifier creates a new Discord notifier
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled && config.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) IsEnabled() bool {
	return d.enabled
}

func (d *DiscordNotifier) Send(ctx context.Context, notification *Notification) error {
	if !d.enabled {
		return nil
	}

	color := 0x00FF00 // Green
	switch {
	case notification.Type == NotifyEmergencyExit, notification.Type == NotifyError, notification.Type == NotifyCircuit:
		color = 0xFF0000
	case notification.Type == NotifyDrawdown:
		color = 0xFFA500
	case notification.Type == NotifyTradeClose && notification.PnL < 0:
		color = 0xFF0000
	}

	embed := map[string]interface{}{
		"title":       notification.Title,
		"description": notification.Message,
		"color":       color,
		"timestamp":   notification.Timestamp.Format(time.RFC3339),
	}

	if notification.Symbol != "" {
		fields := []map[string]interface{}{
			{"name": "Symbol", "value": notification.Symbol, "inline": true},
		}
		if notification.Price > 0 {
			fields = append(fields, map[string]interface{}{
				"name": "Price", "value": fmt.Sprintf("%.4f", notification.Price), "inline": true,
			})
		}
		if notification.PnL != 0 {
			fields = append(fields, map[string]interface{}{
				"name": "P&L", "value": fmt.Sprintf("%.4f (%.2f%%)", notification.PnL, notification.PnLPercent), "inline": true,
			})
		}
		embed["fields"] = fields
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}
	return postJSON(ctx, d.client, d.webhookURL, payload, http.StatusOK, http.StatusNoContent)
}

func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}, okStatus ...int) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	for _, s := range okStatus {
		if resp.StatusCode == s {
			return nil
		}
	}
	return fmt.Errorf("API returned status %d", resp.StatusCode)
}
