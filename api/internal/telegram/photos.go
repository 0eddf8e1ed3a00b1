package telegram

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"nutriscan/api/internal/apperr"
)

const maxDownload = 15 << 20

var errTooLarge = fmt.Errorf("image exceeds %d MB: %w", maxDownload>>20, apperr.ErrInput)

func (r *Router) acceptPhoto(ctx context.Context, msg *tgbotapi.Message) {
	// берём самое большое превью
	ph := msg.Photo[len(msg.Photo)-1]
	r.acceptImage(ctx, msg.Chat.ID, ph.FileID)
}

func (r *Router) acceptImage(ctx context.Context, cid int64, fileID string) {
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		r.SendError(cid, err)
		return
	}
	img, err := download(ctx, url, maxDownload)
	if errors.Is(err, errTooLarge) {
		r.send(cid, fmt.Sprintf("📦 The file is too large. Please send an image under %d MB.", maxDownload>>20))
		return
	}
	if err != nil {
		r.SendError(cid, err)
		return
	}
	_, _ = r.Bot.Request(tgbotapi.NewChatAction(cid, tgbotapi.ChatUploadPhoto))

	out, err := r.Orch.Scan(ctx, userKey(cid), img)
	if err != nil {
		r.SendError(cid, err)
		return
	}
	if !out.Success {
		text := "🔍 " + out.Message + "\nTry another angle or type the digits under the barcode."
		if out.AnnotatedImage != "" {
			r.sendAnnotated(cid, out.AnnotatedImage, text, nil)
			return
		}
		r.send(cid, text)
		return
	}

	caption := fmt.Sprintf("✅ Barcode %s (%s)", out.Code, out.Strategy)
	kb := makeAnalyzeKeyboard()
	if out.AnnotatedImage == "" {
		r.sendMarkdown(cid, esc(caption), &kb)
		return
	}
	r.sendAnnotated(cid, out.AnnotatedImage, caption, &kb)
}

func (r *Router) sendAnnotated(cid int64, b64, caption string, kb *tgbotapi.InlineKeyboardMarkup) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		r.send(cid, caption)
		return
	}
	ph := tgbotapi.NewPhoto(cid, tgbotapi.FileBytes{Name: "scan.jpg", Bytes: raw})
	ph.Caption = caption
	if kb != nil {
		ph.ReplyMarkup = *kb
	}
	if _, err := r.Bot.Send(ph); err != nil {
		r.log().Warn("send photo failed", "chat", cid, "err", err)
		r.send(cid, caption)
	}
}

func download(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("download status %d: %s", resp.StatusCode, string(b))
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, errTooLarge
	}
	return b, nil
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}
