package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/example/dahlia/internal/models"
)

// TelegramService sends order notifications to the admin chat.
type TelegramService struct {
	botToken    string
	adminChatID string
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to the specified chat.
func (s *TelegramService) SendMessage(chatID, text string) error {
	if s.botToken == "" {
		log.Println("[Telegram] Bot token not configured")
		return nil
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)

	msg := telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Telegram] Unexpected status: %d", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(text string) error {
	if s.adminChatID == "" {
		log.Println("[Telegram] Admin chat ID not configured")
		return nil
	}
	return s.SendMessage(s.adminChatID, text)
}

// NotifyOrderCreated notifies admins about a freshly placed order.
func (s *TelegramService) NotifyOrderCreated(order *models.Order) {
	var sb strings.Builder
	sb.WriteString("🛍 <b>New order</b>\n")
	sb.WriteString(fmt.Sprintf("Code: <code>%s</code>\n", order.Code))
	sb.WriteString(fmt.Sprintf("Payment: %s (%s)\n", order.PaymentStatus, order.PaymentMethodKind))
	sb.WriteString(fmt.Sprintf("Deliver to: %s, %s, %s, %s\n",
		order.AddressSnapshot.AddressLine,
		order.AddressSnapshot.Ward,
		order.AddressSnapshot.District,
		order.AddressSnapshot.City))

	for _, item := range order.Items {
		sb.WriteString(fmt.Sprintf("• %s (%s) x%d — %.0f\n",
			item.ProductName, item.VariantLabel, item.Quantity, item.LineTotal))
	}
	sb.WriteString(fmt.Sprintf("<b>Total: %.0f</b>", order.FinalTotal))

	if err := s.SendToAdmin(sb.String()); err != nil {
		log.Printf("[Telegram] Order-created notification failed for %s: %v", order.Code, err)
	}
}

// NotifyOrderCancelled notifies admins about a cancellation.
func (s *TelegramService) NotifyOrderCancelled(order *models.Order) {
	text := fmt.Sprintf("❌ <b>Order cancelled</b>\nCode: <code>%s</code>\nTotal: %.0f",
		order.Code, order.FinalTotal)
	if err := s.SendToAdmin(text); err != nil {
		log.Printf("[Telegram] Order-cancelled notification failed for %s: %v", order.Code, err)
	}
}
