// Package mailer отправляет письма с кодами подтверждения.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// DefaultBaseURL — адрес Mailjet Send API v3.1.
const DefaultBaseURL = "https://api.mailjet.com"

// ErrRejected возвращается, если Mailjet принял запрос, но не подтвердил доставку всех сообщений.
var ErrRejected = errors.New("message rejected by mail provider")

// Config задаёт учётные данные и отправителя Mailjet.
type Config struct {
	BaseURL     string
	APIKey      string
	SecretKey   string
	SenderEmail string
	SenderName  string
}

// Client инкапсулирует HTTP-взаимодействие с Mailjet.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[struct{}]
}

type contact struct {
	Email string `json:"Email"`
	Name  string `json:"Name,omitempty"`
}

type message struct {
	From     contact   `json:"From"`
	To       []contact `json:"To"`
	Subject  string    `json:"Subject"`
	TextPart string    `json:"TextPart"`
	HTMLPart string    `json:"HTMLPart"`
}

type sendRequest struct {
	Messages []message `json:"Messages"`
}

type sendResponse struct {
	Messages []struct {
		Status string `json:"Status"`
	} `json:"Messages"`
}

// NewClient создаёт клиент Mailjet. Запросы идут через circuit breaker: после пяти
// подряд неудачных отправок попытки приостанавливаются на 30 секунд.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.SenderName == "" {
		cfg.SenderName = cfg.SenderEmail
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "mailjet",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		breaker: breaker,
	}
}

// SendVerificationCode отправляет код подтверждения на email.
func (c *Client) SendVerificationCode(ctx context.Context, email, code string) error {
	msg := message{
		From:     contact{Email: c.cfg.SenderEmail, Name: c.cfg.SenderName},
		To:       []contact{{Email: email}},
		Subject:  "Seu código de verificação - Vestetec",
		TextPart: fmt.Sprintf("Seu código de verificação é: %s. Use o código para verificar sua conta no Vestetec.", code),
		HTMLPart: fmt.Sprintf("<h3>Seu código de verificação é: %s</h3><p>Use o código para verificar sua conta no Vestetec.</p>",
			html.EscapeString(code)),
	}

	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.send(ctx, sendRequest{Messages: []message{msg}})
	})
	return err
}

func (c *Client) send(ctx context.Context, payload sendRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v3.1/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.APIKey, c.cfg.SecretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if len(result.Messages) == 0 {
		return ErrRejected
	}
	for _, m := range result.Messages {
		if m.Status != "success" {
			return fmt.Errorf("%w: status %q", ErrRejected, m.Status)
		}
	}

	return nil
}

// LogMailer пишет коды в лог вместо отправки. Используется, когда ключи Mailjet не заданы.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer создаёт LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendVerificationCode записывает код в лог.
func (l *LogMailer) SendVerificationCode(_ context.Context, email, code string) error {
	l.logger.Info("verification code issued", zap.String("email", email), zap.String("code", code))
	return nil
}
