package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"nutriscan/api/internal/app"
	"nutriscan/api/internal/config"
	"nutriscan/api/internal/httpserver"
	"nutriscan/api/internal/logging"
	"nutriscan/api/internal/telegram"
)

// maxInFlight bounds concurrently handled updates.
const maxInFlight = 8

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("error", "text").Error("config", "err", err)
		os.Exit(1)
	}
	if cfg.TelegramBotToken == "" {
		cfg.TelegramBotToken = config.MustEnv("TELEGRAM_BOT_TOKEN")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Error("telegram", "err", err)
		os.Exit(1)
	}
	bot.Debug = false

	r := &telegram.Router{
		Bot:      bot,
		Orch:     a.Orch,
		Profiles: a.Profiles,
		History:  a.History,
		Health:   a.Health,
		Log:      log.With("component", "telegram"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		hctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := a.Health(hctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ok\n" + err.Error()))
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	sem := make(chan struct{}, maxInFlight)
	dispatch := func(upd tgbotapi.Update) {
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			r.HandleUpdate(ctx, upd)
		}()
	}

	addr := "0.0.0.0:" + cfg.Port

	// --- Choose mode: Webhook vs Polling ---
	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		// секретный путь вебхука
		path := "/webhook/" + shortHash(bot.Token)
		wh, err := tgbotapi.NewWebhook(strings.TrimRight(webhookURL, "/") + path)
		if err != nil {
			log.Error("webhook", "err", err)
			os.Exit(1)
		}
		wh.DropPendingUpdates = true
		if _, err := bot.Request(wh); err != nil {
			log.Error("set webhook", "err", err)
			os.Exit(1)
		}
		mux.HandleFunc(path, func(w http.ResponseWriter, req *http.Request) {
			upd, err := bot.HandleUpdate(req)
			if err != nil {
				log.Warn("bad webhook update", "err", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			dispatch(*upd)
		})
		log.Info("webhook mode", "addr", addr)
		if err := httpserver.Run(ctx, addr, mux, log); err != nil {
			log.Error("http server", "err", err)
		}
		return
	}

	// health endpoint is optional in polling mode
	go func() {
		if err := httpserver.Run(ctx, addr, mux, log); err != nil {
			log.Error("health server", "err", err)
		}
	}()
	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		log.Warn("delete webhook", "err", err)
	}
	log.Info("polling mode")
	runPolling(ctx, bot, dispatch, log)
}

// ---------------- Polling loop -----------------

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") { // HTTP 429 от Telegram
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return 1 * time.Second
}

type updateSource interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

type logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

func runPolling(ctx context.Context, bot updateSource, handle func(tgbotapi.Update), log logger) {
	offset := 0
	baseDelay := 1 * time.Second
	maxDelay := 15 * time.Second

	for {
		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30 // long polling timeout (sec)

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := min(max(retryDelayFromError(err), baseDelay), maxDelay)
			log.Warn("polling error", "err", err, "retry_in", d)
			if !sleep(ctx, d) {
				return
			}
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(upd)
		}

		if len(updates) == 0 && !sleep(ctx, 200*time.Millisecond) {
			return
		}
		if ctx.Err() != nil {
			log.Info("polling stopped")
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func shortHash(s string) string {
	// лёгкий хэш для пути вебхука (не крипто, но стабильно для токена)
	h := uint64(1469598103934665603)
	const prime = 1099511628211
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		out[i] = hexdigits[h&0xF]
		h >>= 4
	}
	return string(out)
}
