// Package telegram adapts the core services to the Telegram Bot API. It
// implements the outbound services.Sender contract, renders the inline main
// menu, answers callback queries, and manages the webhook registration.
// Inbound mapping from raw updates lives in update.go.
package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Client wraps a Bot API connection. It satisfies services.Sender.
//
// The underlying library does not take a context; the ctx parameters exist
// to honor the Sender contract and are not used for cancellation.
type Client struct {
	api     *tgbotapi.BotAPI
	adminID int64
}

// New dials the Bot API (a getMe call validates the token) and returns a
// ready Client.
func New(token string, adminID int64) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Client{api: api, adminID: adminID}, nil
}

// SendToUser delivers text to a user, optionally attaching the main menu.
func (c *Client) SendToUser(_ context.Context, userID int64, text string, withMenu bool) error {
	msg := tgbotapi.NewMessage(userID, text)
	if withMenu {
		msg.ReplyMarkup = MainMenu()
	}
	_, err := c.api.Send(msg)
	return err
}

// SendToAdmin delivers text to the configured admin.
func (c *Client) SendToAdmin(ctx context.Context, text string) error {
	return c.SendToUser(ctx, c.adminID, text, false)
}

// AnswerCallback acknowledges a callback query so the client stops showing
// the progress indicator on the pressed button.
func (c *Client) AnswerCallback(_ context.Context, callbackID string) error {
	_, err := c.api.Request(tgbotapi.NewCallback(callbackID, ""))
	return err
}

// InstallWebhook registers publicURL/webhook/<token> as the update webhook.
func (c *Client) InstallWebhook(_ context.Context, publicURL, token string) error {
	wh, err := tgbotapi.NewWebhook(WebhookURL(publicURL, token))
	if err != nil {
		return err
	}
	_, err = c.api.Request(wh)
	return err
}

// RemoveWebhook deregisters any previously installed webhook.
func (c *Client) RemoveWebhook(_ context.Context) error {
	_, err := c.api.Request(tgbotapi.DeleteWebhookConfig{})
	return err
}

// WebhookURL builds the public webhook endpoint for the given base URL and
// bot token. The token in the path is what authenticates Telegram's calls.
func WebhookURL(publicURL, token string) string {
	return strings.TrimRight(publicURL, "/") + "/webhook/" + token
}

// MainMenu renders the inline keyboard attached to menu messages. Button
// callback data values are the identifiers the session router dispatches on.
func MainMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Redeem Request", "redeem"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Buy Premium", "buy"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Service", "service"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Dev", "dev"),
		),
	)
}
