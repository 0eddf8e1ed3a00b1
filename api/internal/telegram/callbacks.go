package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cbAnalyze = "analyze"
	cbClear   = "clear"
)

func (r *Router) handleCallback(ctx context.Context, cb tgbotapi.CallbackQuery) {
	_, _ = r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")) // ack
	if cb.Message == nil {
		return
	}
	cid := cb.Message.Chat.ID
	// убрать клавиатуру
	edit := tgbotapi.NewEditMessageReplyMarkup(cid, cb.Message.MessageID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	_, _ = r.Bot.Request(edit)

	switch cb.Data {
	case cbAnalyze:
		r.runAnalyze(ctx, cid, "")
	case cbClear:
		r.Orch.Clear(userKey(cid))
		r.send(cid, "Scan session cleared.")
	}
}

// runAnalyze analyzes code (or the pending scan when empty) and shows the result.
func (r *Router) runAnalyze(ctx context.Context, cid int64, code string) {
	p, err := r.loadProfile(ctx, cid)
	if err != nil {
		r.SendError(cid, err)
		return
	}
	_, _ = r.Bot.Request(tgbotapi.NewChatAction(cid, tgbotapi.ChatTyping))

	if _, err := r.Orch.Analyze(ctx, userKey(cid), p, strings.TrimSpace(code)); err != nil {
		r.SendError(cid, err)
		return
	}
	res, ok := r.Orch.Result(userKey(cid))
	if !ok {
		r.send(cid, "No results to display. Please scan a product first.")
		return
	}
	kb := makeResultKeyboard()
	r.sendMarkdown(cid, formatResult(res), &kb)
}
