// Webhook HTTP handlers.
//
// This file exposes the endpoints the bot needs to run behind a Telegram
// webhook:
//   - POST /webhook/{token}  (receive one update; token must match the bot token)
//   - GET  /setwebhook       (re-install the webhook against PUBLIC_URL)
//   - GET  /                 (plain-text liveness)
//   - GET  /health           (JSON liveness)
//
// The webhook handler is transport-thin: it authenticates the path token,
// decodes the update, maps it onto the core event type, and delegates to the
// session router. It always answers 200 to Telegram: a non-2xx would make
// Telegram redeliver the same update, so a poison update is logged and
// dropped instead of retried forever.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tbourn/go-premium-bot/internal/config"
	"github.com/tbourn/go-premium-bot/internal/http/middleware"
	"github.com/tbourn/go-premium-bot/internal/services"
	"github.com/tbourn/go-premium-bot/internal/telegram"
)

// UpdateRouter is the slice of the session service the webhook needs.
type UpdateRouter interface {
	Handle(ctx context.Context, ev services.Event) error
}

// WebhookManager is the slice of the Telegram client the HTTP surface needs
// beyond routing: callback acknowledgement and webhook registration.
type WebhookManager interface {
	AnswerCallback(ctx context.Context, callbackID string) error
	InstallWebhook(ctx context.Context, publicURL, token string) error
	RemoveWebhook(ctx context.Context) error
}

// Handlers bundles the HTTP endpoints with their dependencies.
type Handlers struct {
	session UpdateRouter
	tele    WebhookManager
	cfg     config.Config
}

// New constructs the handler set.
func New(session UpdateRouter, tele WebhookManager, cfg config.Config) *Handlers {
	return &Handlers{session: session, tele: tele, cfg: cfg}
}

// Index is the plain-text liveness probe kept for parity with hosting
// platforms that poll the root path.
func (h *Handlers) Index(c *gin.Context) {
	c.String(http.StatusOK, "Bot is running!")
}

// Health is the JSON liveness probe.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Webhook receives one Telegram update. The token path segment authenticates
// the caller; a mismatch is answered with 404 so the real route is not
// distinguishable from a missing one.
func (h *Handlers) Webhook(c *gin.Context) {
	if c.Param("token") != h.cfg.BotToken {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "route not found")
		return
	}

	lg := middleware.LoggerFrom(c)

	var upd tgbotapi.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		lg.Warn().Err(err).Msg("undecodable update")
		c.String(http.StatusOK, "OK")
		return
	}

	ctx := c.Request.Context()
	if ev, ok := telegram.MapUpdate(upd); ok {
		if err := h.session.Handle(ctx, ev); err != nil {
			lg.Error().Err(err).Int64("user_id", ev.UserID).Msg("update handling failed")
		}
	}

	// Ack the button press regardless of the routing outcome, otherwise the
	// client keeps the button in a loading state.
	if upd.CallbackQuery != nil {
		if err := h.tele.AnswerCallback(ctx, upd.CallbackQuery.ID); err != nil {
			lg.Warn().Err(err).Msg("callback answer failed")
		}
	}

	c.String(http.StatusOK, "OK")
}

// SetWebhook (re)installs the webhook against the configured public base
// URL. Useful after moving the deployment; the same installation also runs
// at startup when PUBLIC_URL is set.
func (h *Handlers) SetWebhook(c *gin.Context) {
	if h.cfg.PublicURL == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "PUBLIC_URL is not configured")
		return
	}

	ctx := c.Request.Context()
	if err := h.tele.RemoveWebhook(ctx); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("webhook removal failed")
	}
	if err := h.tele.InstallWebhook(ctx, h.cfg.PublicURL, h.cfg.BotToken); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeWebhookFailed, "webhook installation failed")
		return
	}
	// The full URL embeds the bot token, so it is not echoed back.
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
