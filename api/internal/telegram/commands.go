package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"nutriscan/api/internal/apperr"
	"nutriscan/api/internal/profile"
)

const helpText = "Send a photo of a product barcode and I will look it up and tell you whether it suits you.\n\n" +
	"Commands:\n" +
	"/profile age=30 weight=70 height=175 goal=lose weight diet=vegetarian conditions=diabetes\n" +
	"/code 4006381333931 to analyze a barcode by its digits\n" +
	"/analyze to analyze the last scanned barcode\n" +
	"/history to list recent analyses\n" +
	"/clear to reset the current scan\n" +
	"/health"

func (r *Router) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "health":
		if r.Health != nil {
			if err := r.Health(ctx); err != nil {
				r.send(cid, "❌ "+err.Error())
				return
			}
		}
		r.send(cid, "✅ OK")
	case "profile":
		if args == "" {
			r.showProfile(ctx, cid)
			setMode(cid, modeAwaitProfile)
			return
		}
		r.updateProfile(ctx, cid, args)
	case "code":
		if !manualCode.MatchString(args) {
			r.send(cid, "Usage: /code <8 to 14 digits>")
			return
		}
		r.runAnalyze(ctx, cid, args)
	case "analyze":
		r.runAnalyze(ctx, cid, "")
	case "clear":
		clearMode(cid)
		r.Orch.Clear(userKey(cid))
		r.send(cid, "Scan session cleared.")
	case "history":
		r.showHistory(ctx, cid)
	default:
		r.send(cid, "Unknown command. /help lists what I can do.")
	}
}

func (r *Router) loadProfile(ctx context.Context, cid int64) (profile.Profile, error) {
	p, err := r.Profiles.Get(ctx, userKey(cid))
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return profile.Profile{}, err
	}
	return p, nil
}

func (r *Router) showProfile(ctx context.Context, cid int64) {
	p, err := r.loadProfile(ctx, cid)
	if err != nil {
		r.SendError(cid, err)
		return
	}
	r.send(cid, formatProfile(p)+"\n\nReply with key=value pairs to update, e.g.\nage=30 weight=70 height=175 goal=lose weight")
}

func (r *Router) updateProfile(ctx context.Context, cid int64, input string) {
	cur, err := r.loadProfile(ctx, cid)
	if err != nil {
		r.SendError(cid, err)
		return
	}
	p, err := profile.ParseKV(cur, input)
	if err != nil {
		r.send(cid, "Could not read that: "+err.Error())
		return
	}
	if err := r.Profiles.Put(ctx, userKey(cid), p); err != nil {
		r.SendError(cid, err)
		return
	}
	text := "✅ Profile saved.\n" + formatProfile(p)
	if err := p.Validate(); err != nil {
		text += "\n\n" + apperr.UserMessage(err)
	}
	r.send(cid, text)
}

func (r *Router) showHistory(ctx context.Context, cid int64) {
	rows, err := r.History.Recent(ctx, userKey(cid), 10)
	if err != nil {
		r.SendError(cid, err)
		return
	}
	if len(rows) == 0 {
		r.send(cid, "No analyses yet.")
		return
	}
	var b strings.Builder
	b.WriteString("Recent analyses:\n")
	for i, row := range rows {
		fmt.Fprintf(&b, "%d) %s %s (%s) %s\n", i+1, verdictIcon(row.Advisability),
			row.ProductName, row.Barcode, row.CreatedAt.Format("02 Jan 15:04"))
	}
	r.send(cid, b.String())
}
