package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string `yaml:"port"`

	TelegramBotToken string `yaml:"-"`
	WebhookURL       string `yaml:"webhook_url"`
	DatabaseURL      string `yaml:"-"`

	// advisory model
	LLMProvider    string        `yaml:"llm_provider"` // hf-chat | hf-textgen | gemini
	HFToken        string        `yaml:"-"`
	LLMBaseURL     string        `yaml:"llm_base_url"`
	LLMModel       string        `yaml:"llm_model"`
	LLMMaxTokens   int           `yaml:"llm_max_tokens"`
	LLMTemperature float64       `yaml:"llm_temperature"`
	LLMRetries     int           `yaml:"llm_retries"`
	LLMTimeout     time.Duration `yaml:"llm_timeout"`
	GeminiAPIKey   string        `yaml:"-"`
	GeminiModel    string        `yaml:"gemini_model"`

	// region detector
	DetectorURL     string        `yaml:"detector_url"`
	DetectorConf    float64       `yaml:"detector_conf"`
	DetectorIoU     float64       `yaml:"detector_iou"`
	DetectorTimeout time.Duration `yaml:"detector_timeout"`

	// optical digits
	OCREngine    string        `yaml:"ocr_engine"` // yandex | tesseract | gemini | openai | none
	YCOAuthToken string        `yaml:"-"`
	YCFolderID   string        `yaml:"yc_folder_id"`
	TesseractBin string        `yaml:"tesseract_bin"`
	OCRTimeout   time.Duration `yaml:"ocr_timeout"`
	OpenAIAPIKey string        `yaml:"-"`
	OpenAIModel  string        `yaml:"openai_model"`

	KnowledgePath     string        `yaml:"knowledge_path"`
	KnowledgeTTL      time.Duration `yaml:"knowledge_ttl"`
	KnowledgeMaxWords int           `yaml:"knowledge_max_words"`

	ProductAPIURL    string        `yaml:"product_api_url"`
	NutrientMap      string        `yaml:"nutrient_map"`
	SessionTTL       time.Duration `yaml:"session_ttl"`
	AdvisoryCacheTTL time.Duration `yaml:"advisory_cache_ttl"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func defaults() *Config {
	return &Config{
		Port:              "8000",
		LLMProvider:       "hf-chat",
		LLMBaseURL:        "https://router.huggingface.co/v1",
		LLMModel:          "meta-llama/Meta-Llama-3-8B-Instruct",
		LLMMaxTokens:      400,
		LLMTemperature:    0.2,
		LLMRetries:        2,
		LLMTimeout:        60 * time.Second,
		GeminiModel:       "gemini-2.5-flash",
		DetectorConf:      0.5,
		DetectorIoU:       0.45,
		DetectorTimeout:   20 * time.Second,
		OCREngine:         "tesseract",
		TesseractBin:      "tesseract",
		OCRTimeout:        15 * time.Second,
		OpenAIModel:       "gpt-4o-mini",
		KnowledgePath:     "static/healthy-diet-fact-sheet-394.pdf",
		KnowledgeTTL:      24 * time.Hour,
		KnowledgeMaxWords: 2500,
		ProductAPIURL:     "https://world.openfoodfacts.org",
		SessionTTL:        2 * time.Hour,
		AdvisoryCacheTTL:  30 * 24 * time.Hour,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// MustEnv is for values without which a binary makes no sense (bot token).
func MustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing required env %s", k)
	}
	return v
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("config: bad int in %s=%q, using %d", k, v, def)
	}
	return def
}

func getFloat(k string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Printf("config: bad float in %s=%q, using %v", k, v, def)
	}
	return def
}

func getDuration(k string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("config: bad duration in %s=%q, using %v", k, v, def)
	}
	return def
}

// Load reads .env (if present), then the YAML file named by NUTRISCAN_CONFIG,
// then environment variables. Later sources win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("NUTRISCAN_CONFIG")); path != "" {
		if err := cfg.overlayYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	cfg.WebhookURL = getEnv("WEBHOOK_URL", cfg.WebhookURL)
	cfg.DatabaseURL = resolveDSN()

	cfg.LLMProvider = strings.ToLower(getEnv("LLM_PROVIDER", cfg.LLMProvider))
	cfg.HFToken = getEnv("HF_TOKEN", getEnv("HUGGINGFACEHUB_API_TOKEN", ""))
	cfg.LLMBaseURL = getEnv("LLM_BASE_URL", cfg.LLMBaseURL)
	cfg.LLMModel = getEnv("LLM_MODEL", cfg.LLMModel)
	cfg.LLMMaxTokens = getInt("LLM_MAX_TOKENS", cfg.LLMMaxTokens)
	cfg.LLMTemperature = getFloat("LLM_TEMPERATURE", cfg.LLMTemperature)
	cfg.LLMRetries = getInt("LLM_RETRIES", cfg.LLMRetries)
	cfg.LLMTimeout = getDuration("LLM_TIMEOUT", cfg.LLMTimeout)
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", "")
	cfg.GeminiModel = getEnv("GEMINI_MODEL", cfg.GeminiModel)

	cfg.DetectorURL = getEnv("DETECTOR_URL", cfg.DetectorURL)
	cfg.DetectorConf = getFloat("DETECTOR_CONF", cfg.DetectorConf)
	cfg.DetectorIoU = getFloat("DETECTOR_IOU", cfg.DetectorIoU)
	cfg.DetectorTimeout = getDuration("DETECTOR_TIMEOUT", cfg.DetectorTimeout)

	cfg.OCREngine = strings.ToLower(getEnv("OCR_ENGINE", cfg.OCREngine))
	cfg.YCOAuthToken = getEnv("YC_OAUTH_TOKEN", "")
	cfg.YCFolderID = getEnv("YC_FOLDER_ID", cfg.YCFolderID)
	cfg.TesseractBin = getEnv("TESSERACT_BIN", cfg.TesseractBin)
	cfg.OCRTimeout = getDuration("OCR_TIMEOUT", cfg.OCRTimeout)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", "")
	cfg.OpenAIModel = getEnv("OPENAI_MODEL", cfg.OpenAIModel)

	cfg.KnowledgePath = getEnv("KNOWLEDGE_PATH", cfg.KnowledgePath)
	cfg.KnowledgeTTL = getDuration("KNOWLEDGE_TTL", cfg.KnowledgeTTL)
	cfg.KnowledgeMaxWords = getInt("KNOWLEDGE_MAX_WORDS", cfg.KnowledgeMaxWords)

	cfg.ProductAPIURL = getEnv("PRODUCT_API_URL", cfg.ProductAPIURL)
	cfg.NutrientMap = getEnv("NUTRIENT_MAP", cfg.NutrientMap)
	cfg.SessionTTL = getDuration("SESSION_TTL", cfg.SessionTTL)
	cfg.AdvisoryCacheTTL = getDuration("ADVISORY_CACHE_TTL", cfg.AdvisoryCacheTTL)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayYAML(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DetectorConf < 0 || c.DetectorConf > 1 {
		errs = append(errs, fmt.Errorf("detector_conf must be in [0,1], got %v", c.DetectorConf))
	}
	if c.DetectorIoU < 0 || c.DetectorIoU > 1 {
		errs = append(errs, fmt.Errorf("detector_iou must be in [0,1], got %v", c.DetectorIoU))
	}
	if c.LLMRetries < 0 {
		errs = append(errs, fmt.Errorf("llm_retries must be >= 0, got %d", c.LLMRetries))
	}
	if c.LLMMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("llm_max_tokens must be > 0, got %d", c.LLMMaxTokens))
	}
	if c.KnowledgeMaxWords <= 0 {
		errs = append(errs, fmt.Errorf("knowledge_max_words must be > 0, got %d", c.KnowledgeMaxWords))
	}
	for name, d := range map[string]time.Duration{
		"llm_timeout":      c.LLMTimeout,
		"detector_timeout": c.DetectorTimeout,
		"ocr_timeout":      c.OCRTimeout,
		"session_ttl":      c.SessionTTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, d))
		}
	}
	switch c.LLMProvider {
	case "hf-chat", "hf-textgen", "gemini":
	default:
		errs = append(errs, fmt.Errorf("unknown llm_provider %q", c.LLMProvider))
	}
	switch c.OCREngine {
	case "yandex", "tesseract", "gemini", "openai", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown ocr_engine %q", c.OCREngine))
	}
	return errors.Join(errs...)
}
