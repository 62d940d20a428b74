package bot

import (
	"log/slog"

	"github.com/m3rciful/exchangebot/core/logger"
	tghelpers "github.com/m3rciful/exchangebot/core/telegram/helpers"
	"github.com/m3rciful/exchangebot/internal/chat"
	"github.com/m3rciful/exchangebot/internal/user"

	tele "gopkg.in/telebot.v4"
)

const profileSlot = "profile"

// gate records the profile on every update and stops banned users.
func (a *App) gate(c tele.Context) (bool, error) {
	ctx := tghelpers.BuildContext(c)
	ev := eventOf(c)
	if ev.UserID == 0 {
		return true, nil
	}
	p, err := a.users.Touch(ctx, ev.UserID, ev.Username, a.today())
	if err != nil {
		return true, err
	}
	c.Set(profileSlot, p)
	if !p.Banned || a.isAdmin(ev.UserID) {
		return false, nil
	}

	logger.LogEvent(ctx, a.log, slog.LevelInfo, "bot.banned_user",
		slog.String("status", "denied"),
		slog.Int64("user_id", ev.UserID),
	)
	if ev.Kind == chat.KindButton {
		a.answer(ctx, ev, "Access suspended.")
		return true, nil
	}
	a.say(ctx, ev.ChatID, "Your access to this bot has been suspended.", nil)
	return true, nil
}

func (a *App) profileOf(c tele.Context) (user.Profile, error) {
	if p, ok := c.Get(profileSlot).(user.Profile); ok {
		return p, nil
	}
	ev := eventOf(c)
	p, err := a.users.Touch(tghelpers.BuildContext(c), ev.UserID, ev.Username, a.today())
	if err != nil {
		return user.Profile{}, err
	}
	c.Set(profileSlot, p)
	return p, nil
}

// interceptCancel runs /cancel for the admin ahead of any active flow.
func (a *App) interceptCancel(c tele.Context) (bool, error) {
	ev := eventOf(c)
	if !ev.IsCommand("cancel") || !a.isAdmin(ev.UserID) {
		return false, nil
	}
	return true, a.cmdCancel(c)
}

// interceptConversation hands the event to the active flow, if any.
func (a *App) interceptConversation(c tele.Context) (bool, error) {
	ctx := tghelpers.WithHandler(c, "conversation")
	ev := eventOf(c)
	handled, err := a.machine.Handle(ctx, ev)
	if err != nil {
		a.say(ctx, ev.ChatID, msgTryLater, nil)
		return true, err
	}
	return handled, nil
}
