// Package telegram drives the scan → analyze → result flow from a chat.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"nutriscan/api/internal/apperr"
	"nutriscan/api/internal/logging"
	"nutriscan/api/internal/profile"
	"nutriscan/api/internal/session"
	"nutriscan/api/internal/store"
)

// Bot is the subset of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Profiles interface {
	Get(ctx context.Context, userKey string) (profile.Profile, error)
	Put(ctx context.Context, userKey string, p profile.Profile) error
}

type History interface {
	Recent(ctx context.Context, userKey string, limit int) ([]store.ScanRow, error)
}

type Router struct {
	Bot      Bot
	Orch     *session.Orchestrator
	Profiles Profiles
	History  History
	Health   func(ctx context.Context) error // optional
	Log      *slog.Logger
}

var manualCode = regexp.MustCompile(`^\d{8,14}$`)

func userKey(chatID int64) string { return fmt.Sprintf("tg:%d", chatID) }

func (r *Router) log() *slog.Logger {
	if r.Log == nil {
		return logging.Discard()
	}
	return r.Log
}

func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	// callback-кнопки
	if upd.CallbackQuery != nil {
		r.handleCallback(ctx, *upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	cid := msg.Chat.ID

	if msg.IsCommand() {
		r.HandleCommand(ctx, msg)
		return
	}
	if len(msg.Photo) > 0 {
		r.acceptPhoto(ctx, msg)
		return
	}
	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/") {
		r.acceptImage(ctx, cid, msg.Document.FileID)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	// ждём профиль после голого /profile
	if getMode(cid) == modeAwaitProfile {
		clearMode(cid)
		r.updateProfile(ctx, cid, text)
		return
	}
	if manualCode.MatchString(text) {
		r.runAnalyze(ctx, cid, text)
		return
	}
	r.send(cid, "Send a photo of a barcode, or type the digits under it.")
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.Bot.Send(msg); err != nil {
		r.log().Warn("telegram send failed", "chat", chatID, "err", err)
	}
}

func (r *Router) sendMarkdown(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	if _, err := r.Bot.Send(msg); err != nil {
		r.log().Warn("telegram send failed", "chat", chatID, "err", err)
	}
}

// SendError shows the user-facing sentence for err; details go to the log.
func (r *Router) SendError(chatID int64, err error) {
	lvl := slog.LevelWarn
	if session.IsUserError(err) {
		lvl = slog.LevelInfo
	}
	r.log().Log(context.Background(), lvl, "request failed", "chat", chatID, "err", err)
	r.send(chatID, "⚠️ "+apperr.UserMessage(err))
}
