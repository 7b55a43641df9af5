package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tbourn/go-premium-bot/internal/services"
	"github.com/tbourn/go-premium-bot/internal/sysutil"
)

// MapUpdate converts a raw Telegram update into the transport-neutral event
// consumed by the session router. The second return value is false when the
// update carries nothing actionable (no sender, non-text payloads such as
// stickers, joins, edits).
func MapUpdate(upd tgbotapi.Update) (services.Event, bool) {
	if m := upd.Message; m != nil && m.From != nil {
		name := displayName(m.From)
		if m.IsCommand() {
			args := strings.TrimSpace(m.CommandArguments())
			return services.Event{
				Kind:        services.EventCommand,
				UserID:      m.From.ID,
				DisplayName: name,
				Command:     strings.ToLower(m.Command()),
				Args:        strings.Fields(args),
				ArgText:     args,
			}, true
		}
		if m.Text != "" {
			return services.Event{
				Kind:        services.EventText,
				UserID:      m.From.ID,
				DisplayName: name,
				Text:        m.Text,
			}, true
		}
		return services.Event{}, false
	}

	if cb := upd.CallbackQuery; cb != nil && cb.From != nil {
		return services.Event{
			Kind:        services.EventButton,
			UserID:      cb.From.ID,
			DisplayName: displayName(cb.From),
			Button:      cb.Data,
		}, true
	}

	return services.Event{}, false
}

// displayName prefers the public username and falls back to the first name.
func displayName(u *tgbotapi.User) string {
	return sysutil.FirstNonEmpty(u.UserName, u.FirstName)
}
