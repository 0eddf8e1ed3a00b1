// Package app builds every collaborator once from configuration and owns
// their teardown. Both binaries start from Build.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nutriscan/api/internal/advisory"
	"nutriscan/api/internal/barcode"
	"nutriscan/api/internal/config"
	"nutriscan/api/internal/detector"
	"nutriscan/api/internal/handle"
	"nutriscan/api/internal/knowledge"
	"nutriscan/api/internal/ocr"
	"nutriscan/api/internal/ocr/gemini"
	"nutriscan/api/internal/ocr/openai"
	"nutriscan/api/internal/ocr/tesseract"
	"nutriscan/api/internal/ocr/yandex"
	"nutriscan/api/internal/product"
	"nutriscan/api/internal/scan"
	"nutriscan/api/internal/session"
	"nutriscan/api/internal/store"
)

type App struct {
	Cfg      *config.Config
	Log      *slog.Logger
	DB       *sql.DB // nil without DATABASE_URL
	Orch     *session.Orchestrator
	Profiles handle.Profiles
	History  handle.History
	Checks   []handle.Check
	Detector *detector.Client // nil when not configured

	sessions *session.MemoryStore
	cancel   context.CancelFunc
}

// Build wires the service graph. Missing optional collaborators (database,
// detector, OCR) degrade the service instead of failing startup.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: log}

	var (
		scanLog session.ScanLog
		cache   advisory.Cache
	)
	if cfg.DatabaseURL != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		if err := store.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("db connected", "dsn", config.SafeDSNSummary(cfg.DatabaseURL))
		a.DB = db
		scans := store.NewScanRepo(db)
		scanLog, a.History = scans, scans
		a.Profiles = store.NewProfileRepo(db)
		cache = store.NewAdvisoryRepo(db)
		a.Checks = append(a.Checks, handle.Check{Name: "db", Probe: db.PingContext})
	} else {
		log.Warn("DATABASE_URL not set, profiles and history are kept in memory")
		scans := store.NewMemoryScanRepo(0)
		scanLog, a.History = scans, scans
		a.Profiles = store.NewMemoryProfileRepo()
	}

	var det detector.Detector
	if c, err := detector.New(cfg.DetectorURL, cfg.DetectorConf, cfg.DetectorIoU, cfg.DetectorTimeout); err != nil {
		log.Warn("region detector disabled", "err", err)
	} else {
		a.Detector = c
		det = c
		a.Checks = append(a.Checks, handle.Check{Name: "detector", Probe: c.CheckHealth})
	}

	cascade := scan.NewCascade(barcode.NewZXing(), det, ocrEngine(cfg, log), scan.Options{
		DetectTimeout: cfg.DetectorTimeout,
		OCRTimeout:    cfg.OCRTimeout,
	}, log.With("component", "cascade"))

	client := advisory.NewClient(modelBackend(cfg), advisory.ClientOptions{
		Params:  advisory.Params{MaxTokens: cfg.LLMMaxTokens, Temperature: cfg.LLMTemperature},
		Retries: cfg.LLMRetries,
		Timeout: cfg.LLMTimeout,
	}, log.With("component", "model"))
	log.Info("advisory model", "engine", client.Engine(), "model", client.Model())

	advisor := advisory.NewService(client,
		knowledge.NewLoader(knowledge.FileExtractor{}, cfg.KnowledgeTTL, log),
		cache,
		advisory.ServiceOptions{
			KnowledgePath: cfg.KnowledgePath,
			CacheTTL:      cfg.AdvisoryCacheTTL,
			Compose:       advisory.ComposeOptions{KnowledgeWords: cfg.KnowledgeMaxWords},
		}, log.With("component", "advisory"))

	a.sessions = session.NewMemoryStore(cfg.SessionTTL)
	a.Orch = session.New(session.Deps{
		Store:    a.sessions,
		Scanner:  cascade,
		Products: product.NewOpenFoodFacts(cfg.ProductAPIURL, log),
		Advisor:  advisor,
		ScanLog:  scanLog,
		Labels:   product.ParseNutrientMap(cfg.NutrientMap),
	}, log.With("component", "session"))

	sctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.sessions.RunSweeper(sctx, sweepEvery(cfg))
	return a, nil
}

// Health runs every check and returns the first failure.
func (a *App) Health(ctx context.Context) error {
	for _, c := range a.Checks {
		if err := c.Probe(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.Name, err)
		}
	}
	return nil
}

func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

// ocrEngine returns an untyped nil when optical extraction is disabled so
// the cascade's nil check holds.
func ocrEngine(cfg *config.Config, log *slog.Logger) ocr.Engine {
	switch strings.ToLower(cfg.OCREngine) {
	case "yandex":
		if cfg.YCOAuthToken == "" || cfg.YCFolderID == "" {
			log.Warn("yandex OCR needs YC_OAUTH_TOKEN and YC_FOLDER_ID, optical stage disabled")
			return nil
		}
		return yandex.New(cfg.YCOAuthToken, cfg.YCFolderID)
	case "tesseract":
		return tesseract.New(cfg.TesseractBin)
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			log.Warn("gemini OCR needs GEMINI_API_KEY, optical stage disabled")
			return nil
		}
		return gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Warn("openai OCR needs OPENAI_API_KEY, optical stage disabled")
			return nil
		}
		return openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	default:
		log.Info("optical stage disabled", "ocr_engine", cfg.OCREngine)
		return nil
	}
}

// modelBackend returns nil for an unknown provider; Complete then reports
// the model as unavailable.
func modelBackend(cfg *config.Config) advisory.Backend {
	switch strings.ToLower(cfg.LLMProvider) {
	case "hf-chat":
		return advisory.NewChatBackend(cfg.HFToken, cfg.LLMBaseURL, cfg.LLMModel)
	case "hf-textgen":
		return advisory.NewTextGenBackend(cfg.HFToken, cfg.LLMBaseURL, cfg.LLMModel)
	case "gemini":
		return advisory.NewGeminiBackend(cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		return nil
	}
}

func sweepEvery(cfg *config.Config) time.Duration {
	if cfg.SessionTTL <= 0 {
		return 0
	}
	return max(cfg.SessionTTL/4, time.Minute)
}
