package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/exchangebot/core/logger"
	"github.com/m3rciful/exchangebot/core/telegram/commands"
	"github.com/m3rciful/exchangebot/internal/chat"
	"github.com/m3rciful/exchangebot/internal/conversation"
	"github.com/m3rciful/exchangebot/internal/product"
	"github.com/m3rciful/exchangebot/internal/review"

	tele "gopkg.in/telebot.v4"
)

const pendingListLimit = 20

func (a *App) register() {
	userCmds := []struct {
		name string
		cmd  commands.Command
	}{
		{"/start", commands.Command{Handler: a.handler(a.cmdStart), Description: "Main menu", Aliases: []string{"help"}}},
		{"/status", commands.Command{Handler: a.handler(a.cmdStatus), Description: "Your redemptions today"}},
		{"/redeem", commands.Command{Handler: a.handler(a.cmdRedeem), Description: "Redeem a keyword", Usage: "/redeem <keyword>"}},
		{"/vip", commands.Command{Handler: a.handler(a.beginVIP), Description: "Upgrade to VIP"}},
		{"/verify", commands.Command{Handler: a.handler(a.beginVerify), Description: "Submit a verification screenshot"}},
	}
	adminCmds := []struct {
		name string
		cmd  commands.Command
	}{
		{"/admin", commands.Command{Handler: a.handler(a.cmdAdmin), Description: "Admin menu"}},
		{"/cz", commands.Command{Handler: a.handler(a.cmdReset), Description: "Reset a user's quota", Usage: "/cz <user_id>"}},
		{"/products", commands.Command{Handler: a.handler(a.cmdProducts), Description: "List products"}},
		{"/addproduct", commands.Command{Handler: a.handler(a.begin(conversation.AwaitingKeyword)), Description: "Create a product"}},
		{"/delproduct", commands.Command{Handler: a.handler(a.cmdDeleteProduct), Description: "Delete a product", Usage: "/delproduct <keyword>"}},
		{"/fileid", commands.Command{Handler: a.handler(a.begin(conversation.AwaitingFileID)), Description: "Show the file id of an image"}},
		{"/pending", commands.Command{Handler: a.handler(a.cmdPending), Description: "Resend pending review tickets"}},
		{"/finish", commands.Command{Handler: a.handler(a.cmdFinish), Description: "Save the product being collected"}},
		{"/cancel", commands.Command{Handler: a.cmdCancel, Description: "Abort the current flow"}},
	}
	for _, c := range userCmds {
		a.reg.RegisterCommand(c.name, c.cmd)
	}
	for _, c := range adminCmds {
		c.cmd.AdminOnly = true
		a.reg.RegisterCommand(c.name, c.cmd)
	}

	a.reg.SetTextFallback(a.handler(a.redeemText))
	for action, h := range map[string]tele.HandlerFunc{
		chat.ActionReview: a.handler(a.onReview),
		chat.ActionMore:   a.handler(a.onMore),
		chat.ActionPaid:   a.handler(a.beginVIP),
		chat.ActionVerify: a.handler(a.beginVerify),
		chat.ActionStart:  a.handler(a.cmdStart),
		chat.ActionFinish: a.handler(a.cmdFinish),
	} {
		_ = a.reg.RegisterCallback(action, h)
	}
}

// ShowStart sends the user menu with the buttons the user can still use.
func (a *App) ShowStart(ctx context.Context, chatID, userID int64) error {
	p, _, err := a.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	snap, err := a.quota.Status(ctx, userID, a.now())
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("Welcome! Send a keyword to receive its content.\n")
	if snap.Record.IsVIP {
		b.WriteString("You are VIP: redemptions are unlimited.")
	} else {
		fmt.Fprintf(&b, "Free redemptions left today: %d.", snap.FreeLeft)
	}

	kb := &chat.Keyboard{}
	if !p.IsVIP && !snap.Record.IsVIP && !p.VIPPending {
		kb.Row(chat.Button{Text: "I paid for VIP", Action: chat.ActionPaid})
	}
	if tier := p.NextTier(); tier > 0 && p.VerifyPending == 0 {
		kb.Row(chat.Button{Text: fmt.Sprintf("Verify tier %d", tier), Action: chat.ActionVerify})
	}
	if len(kb.Rows) == 0 {
		kb = nil
	}
	_, err = a.messenger.SendText(ctx, chatID, b.String(), kb)
	return err
}

// ShowAdminMenu lists the admin commands.
func (a *App) ShowAdminMenu(ctx context.Context, chatID int64) error {
	text := "Admin commands:\n" + strings.Join(a.reg.Usage(true), "\n")
	_, err := a.messenger.SendText(ctx, chatID, text, nil)
	return err
}

func (a *App) cmdStart(ctx context.Context, ev chat.Event) error {
	a.answer(ctx, ev, "")
	if err := a.ShowStart(ctx, ev.ChatID, ev.UserID); err != nil {
		return err
	}
	if a.isAdmin(ev.UserID) {
		return a.ShowAdminMenu(ctx, ev.ChatID)
	}
	return nil
}

func (a *App) cmdAdmin(ctx context.Context, ev chat.Event) error {
	return a.ShowAdminMenu(ctx, ev.ChatID)
}

func (a *App) cmdStatus(ctx context.Context, ev chat.Event) error {
	now := a.now()
	snap, err := a.quota.Status(ctx, ev.UserID, now)
	if err != nil {
		return err
	}
	if snap.Record.IsVIP {
		a.say(ctx, ev.ChatID, "You are VIP: redemptions are unlimited.", nil)
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Redemptions today: %d (free %d of %d).\n", snap.Record.AttemptCount, snap.Record.FreeCount, snap.Allowance)
	fmt.Fprintf(&b, "Remaining today: %d.", snap.UsesLeft)
	if snap.RetryAfter > 0 {
		fmt.Fprintf(&b, "\nNext redemption in %s.", humanDuration(snap.RetryAfter))
	}
	a.say(ctx, ev.ChatID, b.String(), nil)
	return nil
}

func (a *App) cmdRedeem(ctx context.Context, ev chat.Event) error {
	if strings.TrimSpace(ev.Args) == "" {
		a.say(ctx, ev.ChatID, "Usage: /redeem <keyword>", nil)
		return nil
	}
	return a.redeem(ctx, ev, ev.Args)
}

func (a *App) redeemText(ctx context.Context, ev chat.Event) error {
	text, ok := ev.PlainText()
	if !ok {
		return nil
	}
	return a.redeem(ctx, ev, text)
}

func (a *App) beginVIP(ctx context.Context, ev chat.Event) error {
	a.answer(ctx, ev, "")
	p, _, err := a.users.Get(ctx, ev.UserID)
	if err != nil {
		return err
	}
	switch {
	case p.IsVIP:
		a.say(ctx, ev.ChatID, "You are already VIP.", nil)
		return nil
	case p.VIPPending:
		a.say(ctx, ev.ChatID, "Your payment is already waiting for review.", nil)
		return nil
	}
	if err := a.reviews.CanSubmit(ctx, ev.UserID); err != nil {
		if errors.Is(err, review.ErrManualReview) {
			a.say(ctx, ev.ChatID, "Your previous submissions were rejected too often. Please contact the administrator.", nil)
			return nil
		}
		return err
	}
	return a.machine.Begin(ctx, ev.UserID, ev.ChatID, conversation.AwaitingOrderNumber, 0)
}

func (a *App) beginVerify(ctx context.Context, ev chat.Event) error {
	a.answer(ctx, ev, "")
	p, _, err := a.users.Get(ctx, ev.UserID)
	if err != nil {
		return err
	}
	tier := p.NextTier()
	switch {
	case tier == 0:
		a.say(ctx, ev.ChatID, "Both verification tiers are already approved.", nil)
		return nil
	case p.VerifyPending != 0:
		a.say(ctx, ev.ChatID, "Your verification is already waiting for review.", nil)
		return nil
	}
	if err := a.reviews.CanSubmit(ctx, ev.UserID); err != nil {
		if errors.Is(err, review.ErrManualReview) {
			a.say(ctx, ev.ChatID, "Your previous submissions were rejected too often. Please contact the administrator.", nil)
			return nil
		}
		return err
	}
	return a.machine.Begin(ctx, ev.UserID, ev.ChatID, conversation.AwaitingVerificationPhoto, tier)
}

func (a *App) begin(action conversation.Action) func(ctx context.Context, ev chat.Event) error {
	return func(ctx context.Context, ev chat.Event) error {
		return a.machine.Begin(ctx, ev.UserID, ev.ChatID, action, 0)
	}
}

func (a *App) cmdReset(ctx context.Context, ev chat.Event) error {
	id, err := strconv.ParseInt(strings.TrimSpace(ev.Args), 10, 64)
	if err != nil || id <= 0 {
		a.say(ctx, ev.ChatID, "Usage: /cz <user_id>", nil)
		return nil
	}
	if err := a.quota.ResetUser(ctx, id, a.now()); err != nil {
		return err
	}
	a.say(ctx, ev.ChatID, fmt.Sprintf("Quota of user %d reset.", id), nil)
	return nil
}

func (a *App) cmdProducts(ctx context.Context, ev chat.Event) error {
	list, err := a.products.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		a.say(ctx, ev.ChatID, "No products yet. Use /addproduct to create one.", nil)
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Products (%d):", len(list))
	for _, p := range list {
		fmt.Fprintf(&b, "\n%s: %d items", p.Keyword, len(p.Items))
	}
	a.say(ctx, ev.ChatID, b.String(), nil)
	return nil
}

func (a *App) cmdDeleteProduct(ctx context.Context, ev chat.Event) error {
	kw := product.NormalizeKeyword(ev.Args)
	if kw == "" {
		a.say(ctx, ev.ChatID, "Usage: /delproduct <keyword>", nil)
		return nil
	}
	ok, err := a.products.Delete(ctx, kw)
	if err != nil {
		return err
	}
	if !ok {
		a.say(ctx, ev.ChatID, fmt.Sprintf("Product %q not found.", kw), nil)
		return nil
	}
	logger.LogEvent(ctx, a.log, slog.LevelInfo, "bot.product_deleted", slog.String("keyword", kw))
	a.say(ctx, ev.ChatID, fmt.Sprintf("Product %q deleted.", kw), nil)
	return nil
}

// cmdFinish is reached only when no product is being collected.
func (a *App) cmdFinish(ctx context.Context, ev chat.Event) error {
	if ev.Kind == chat.KindButton {
		a.answer(ctx, ev, "Nothing to finish.")
		return nil
	}
	a.say(ctx, ev.ChatID, "Nothing to finish. Use /addproduct first.", nil)
	return nil
}

func (a *App) cmdCancel(c tele.Context) error {
	return a.handler(func(ctx context.Context, ev chat.Event) error {
		active, err := a.machine.Cancel(ctx, ev.UserID)
		if err != nil {
			return err
		}
		if active {
			a.say(ctx, ev.ChatID, "Cancelled.", nil)
		} else {
			a.say(ctx, ev.ChatID, "Nothing to cancel.", nil)
		}
		return a.ShowAdminMenu(ctx, ev.ChatID)
	})(c)
}

func (a *App) cmdPending(ctx context.Context, ev chat.Event) error {
	tickets, err := a.reviews.Pending(ctx, pendingListLimit)
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		a.say(ctx, ev.ChatID, "No pending tickets.", nil)
		return nil
	}
	for _, t := range tickets {
		a.say(ctx, ev.ChatID, ticketSummary(t), review.Keyboard(t.ID))
	}
	return nil
}

func (a *App) unknownCommand(c tele.Context) error {
	return a.handler(func(ctx context.Context, ev chat.Event) error {
		a.say(ctx, ev.ChatID, "Unknown command. Send /start to see the menu.", nil)
		return nil
	})(c)
}

func (a *App) unexpectedMedia(c tele.Context) error {
	return a.handler(func(ctx context.Context, ev chat.Event) error {
		a.say(ctx, ev.ChatID, "Send a keyword to receive its content.", nil)
		return nil
	})(c)
}

func (a *App) unknownCallback(c tele.Context) error {
	return a.handler(func(ctx context.Context, ev chat.Event) error {
		a.answer(ctx, ev, "This button is no longer active.")
		return nil
	})(c)
}

func ticketSummary(t review.Ticket) string {
	var b strings.Builder
	switch t.Kind {
	case review.KindOrder:
		fmt.Fprintf(&b, "VIP order from user %d\nOrder number: %s", t.UserID, t.OrderNumber)
	case review.KindVerification:
		fmt.Fprintf(&b, "Tier %d verification from user %d", t.Tier, t.UserID)
		if t.FileID != "" {
			fmt.Fprintf(&b, "\nFile id: %s", t.FileID)
		}
	default:
		fmt.Fprintf(&b, "Ticket from user %d", t.UserID)
	}
	fmt.Fprintf(&b, "\nTicket: %s", t.ID)
	return b.String()
}
