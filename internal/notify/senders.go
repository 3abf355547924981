package notify

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"gopkg.in/gomail.v2"

	"leadbridge/internal/models"
)

type Sender interface {
	Name() string
	Accepts(u models.User) bool
	Send(ctx context.Context, to models.User, msg Message) error
}

type telegramAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// TelegramSender writes to users that linked a Telegram chat.
type TelegramSender struct {
	bot telegramAPI
}

func NewTelegramSender(bot *telego.Bot) *TelegramSender {
	return &TelegramSender{bot: bot}
}

func (s *TelegramSender) Name() string { return "telegram" }

func (s *TelegramSender) Accepts(u models.User) bool { return u.TelegramChatID != 0 }

func (s *TelegramSender) Send(ctx context.Context, to models.User, msg Message) error {
	text := fmt.Sprintf("%s\n\n%s", msg.Subject, msg.Body)
	if _, err := s.bot.SendMessage(ctx, tu.Message(tu.ID(to.TelegramChatID), text)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailSender struct {
	dialer mailDialer
	from   string
}

func NewEmailSender(host string, port int, user, password, from string) *EmailSender {
	return &EmailSender{dialer: gomail.NewDialer(host, port, user, password), from: from}
}

func (s *EmailSender) Name() string { return "email" }

func (s *EmailSender) Accepts(u models.User) bool { return u.Email != "" }

func (s *EmailSender) Send(_ context.Context, to models.User, msg Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetAddressHeader("To", to.Email, to.FullName())
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
