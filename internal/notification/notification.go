package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dexpaper-trading-bot/config"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifySignal       NotificationType = "signal"
	NotifyTradeOpen    NotificationType = "trade_open"
	NotifyTradeClose   NotificationType = "trade_close"
	NotifyCycleSummary NotificationType = "cycle_summary"
	NotifyPause        NotificationType = "pause"
	NotifyError        NotificationType = "error"
)

// Notification represents a notification message
type Notification struct {
	Type       NotificationType
	Title      string
	Message    string
	Symbol     string
	Network    string
	Layer      string
	Price      float64
	PnL        float64
	PnLPercent float64
	Timestamp  time.Time
	Extra      map[string]interface{}
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager manages multiple notification providers
type Manager struct {
	notifiers []Notifier
	enabled   bool
}

// NewManager creates a manager with providers built from config
func NewManager(cfg config.NotificationConfig) *Manager {
	m := &Manager{
		notifiers: make([]Notifier, 0),
		enabled:   cfg.Enabled,
	}
	if cfg.Telegram.Enabled {
		m.AddNotifier(NewTelegramNotifier(cfg.Telegram))
	}
	if cfg.Discord.Enabled {
		m.AddNotifier(NewDiscordNotifier(cfg.Discord))
	}
	return m
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send sends a notification to all enabled providers
func (m *Manager) Send(notification *Notification) error {
	if !m.enabled {
		return nil
	}

	var lastErr error
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			if err := n.Send(notification); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}

// SendSignal sends a confluence signal notification
func (m *Manager) SendSignal(symbol, network, source, layer string, confidence, price float64) error {
	emoji := "🟢"
	if layer == "satellite" {
		emoji = "🟡"
	}

	return m.Send(&Notification{
		Type:      NotifySignal,
		Title:     fmt.Sprintf("%s Signal: %s (%s)", emoji, symbol, network),
		Message:   fmt.Sprintf("%s / %s layer @ %.8f\nConfidence: %.1f", source, layer, price, confidence),
		Symbol:    symbol,
		Network:   network,
		Layer:     layer,
		Price:     price,
		Timestamp: time.Now(),
		Extra: map[string]interface{}{
			"source":     source,
			"confidence": confidence,
		},
	})
}

// SendTradeOpen sends a paper fill notification
func (m *Manager) SendTradeOpen(symbol, network, layer string, entryPrice, positionUSD, slippagePct float64) error {
	return m.Send(&Notification{
		Type:      NotifyTradeOpen,
		Title:     fmt.Sprintf("📈 Position Opened: %s (%s)", symbol, network),
		Message:   fmt.Sprintf("%s layer\nEntry: %.8f\nSize: $%.2f\nSlippage: %.3f%%", layer, entryPrice, positionUSD, slippagePct*100),
		Symbol:    symbol,
		Network:   network,
		Layer:     layer,
		Price:     entryPrice,
		Timestamp: time.Now(),
	})
}

// SendTradeClose sends a position exit notification
func (m *Manager) SendTradeClose(symbol, network, reason string, entryPrice, exitPrice, pnl, pnlPercent float64) error {
	emoji := "✅"
	if pnl < 0 {
		emoji = "❌"
	}

	return m.Send(&Notification{
		Type:       NotifyTradeClose,
		Title:      fmt.Sprintf("%s Position Closed: %s (%s)", emoji, symbol, network),
		Message:    fmt.Sprintf("Entry: %.8f → Exit: %.8f\nP&L: $%.2f (%.2f%%)\nReason: %s", entryPrice, exitPrice, pnl, pnlPercent, reason),
		Symbol:     symbol,
		Network:    network,
		Price:      exitPrice,
		PnL:        pnl,
		PnLPercent: pnlPercent,
		Timestamp:  time.Now(),
	})
}

// SendCycleSummary sends an end-of-cycle digest
func (m *Manager) SendCycleSummary(regime string, signals, executed, closed int, realizedPnL float64) error {
	return m.Send(&Notification{
		Type:      NotifyCycleSummary,
		Title:     "🔄 Cycle Complete",
		Message:   fmt.Sprintf("Regime: %s\nSignals: %d | Fills: %d | Exits: %d\nRealized P&L: $%.2f", regime, signals, executed, closed, realizedPnL),
		PnL:       realizedPnL,
		Timestamp: time.Now(),
		Extra: map[string]interface{}{
			"regime":   regime,
			"signals":  signals,
			"executed": executed,
			"closed":   closed,
		},
	})
}

// SendPause sends a kill-switch pause notification
func (m *Manager) SendPause(reason string, until time.Time) error {
	return m.Send(&Notification{
		Type:      NotifyPause,
		Title:     "⏸️ Trading Paused",
		Message:   fmt.Sprintf("Reason: %s\nResumes: %s", reason, until.UTC().Format(time.RFC3339)),
		Timestamp: time.Now(),
	})
}

// SendError sends an error notification
func (m *Manager) SendError(title, message string) error {
	return m.Send(&Notification{
		Type:      NotifyError,
		Title:     fmt.Sprintf("⚠️ %s", title),
		Message:   message,
		Timestamp: time.Now(),
	})
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

// TelegramNotifier sends notifications via Telegram
type TelegramNotifier struct {
	botToken string
	chatID   string
	enabled  bool
	apiBase  string
	client   *http.Client
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(cfg config.TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		apiBase:  "https://api.telegram.org",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(notification *Notification) error {
	if !t.enabled {
		return nil
	}

	message := fmt.Sprintf("*%s*\n\n%s", notification.Title, notification.Message)

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
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

// NewDiscordNotifier creates a new Discord notifier
func NewDiscordNotifier(cfg config.DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: cfg.WebhookURL,
		enabled:    cfg.Enabled && cfg.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) IsEnabled() bool {
	return d.enabled
}

func (d *DiscordNotifier) Send(notification *Notification) error {
	if !d.enabled {
		return nil
	}

	color := 0x00FF00 // Green
	if notification.Type == NotifyError || notification.Type == NotifyPause {
		color = 0xFF0000 // Red
	} else if notification.Type == NotifyTradeClose && notification.PnL < 0 {
		color = 0xFF0000 // Red
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
		if notification.Network != "" {
			fields = append(fields, map[string]interface{}{
				"name": "Network", "value": notification.Network, "inline": true,
			})
		}
		if notification.Layer != "" {
			fields = append(fields, map[string]interface{}{
				"name": "Layer", "value": notification.Layer, "inline": true,
			})
		}
		if notification.Price > 0 {
			fields = append(fields, map[string]interface{}{
				"name": "Price", "value": fmt.Sprintf("%.8f", notification.Price), "inline": true,
			})
		}
		if notification.PnL != 0 {
			fields = append(fields, map[string]interface{}{
				"name": "P&L", "value": fmt.Sprintf("%.2f (%.2f%%)", notification.PnL, notification.PnLPercent), "inline": true,
			})
		}
		embed["fields"] = fields
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}

	return nil
}
