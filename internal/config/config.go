package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// FailurePolicy controls how the pipeline behaves when a dependency fails.
type FailurePolicy string

const (
	// FailOpen proceeds without the dependency's verdict (availability first).
	FailOpen FailurePolicy = "open"
	// FailClosed refuses the request when the dependency cannot answer.
	FailClosed FailurePolicy = "closed"
)

// Config holds application configuration. It is built once at startup and
// never mutated afterwards; components receive it (or slices of it) by value.
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	BedrockModelID          string
	BedrockEmbeddingModelID string

	OpenAIAPIKey          string
	OpenAIModerationModel string

	// Retrieval gate tuning.
	RetrievalTopK       int
	RetrievalMinScore   float64
	RetrievalMinExcerpt int

	// Generation.
	MaxAnswerTokens   int32
	MaxHistoryTurns   int
	EmbedTimeout      time.Duration
	ModerationTimeout time.Duration
	GenerationTimeout time.Duration
	NormalizeTimeout  time.Duration

	// Per-dependency failure policies. Moderation, injection scanning and
	// query normalization fail open; the abuse gate fails closed because it
	// reads durable state, not a live service.
	ModerationPolicy FailurePolicy
	InjectionPolicy  FailurePolicy
	AbuseGatePolicy  FailurePolicy

	// Enforcement thresholds.
	StrikesForSuspension int
	SuspensionsForBan    int
	SuspensionDuration   time.Duration

	// Anonymous requests are throttled per IP instead of gated per identity.
	AnonRateLimitPerSec float64
	AnonRateLimitBurst  int

	AdminJWTSecret string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "ap-southeast-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		BedrockModelID:          getEnv("BEDROCK_MODEL_ID", ""),
		BedrockEmbeddingModelID: getEnv("BEDROCK_EMBEDDING_MODEL_ID", "amazon.titan-embed-text-v2:0"),

		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIModerationModel: getEnv("OPENAI_MODERATION_MODEL", "omni-moderation-latest"),

		RetrievalTopK:       getEnvAsInt("RETRIEVAL_TOP_K", 5),
		RetrievalMinScore:   getEnvAsFloat("RETRIEVAL_MIN_SCORE", 0.45),
		RetrievalMinExcerpt: getEnvAsInt("RETRIEVAL_MIN_EXCERPT_CHARS", 40),

		MaxAnswerTokens:   int32(getEnvAsInt("MAX_ANSWER_TOKENS", 1024)),
		MaxHistoryTurns:   getEnvAsInt("MAX_HISTORY_TURNS", 24),
		EmbedTimeout:      getEnvAsDuration("EMBED_TIMEOUT", 10*time.Second),
		ModerationTimeout: getEnvAsDuration("MODERATION_TIMEOUT", 8*time.Second),
		GenerationTimeout: getEnvAsDuration("GENERATION_TIMEOUT", 90*time.Second),
		NormalizeTimeout:  getEnvAsDuration("NORMALIZE_TIMEOUT", 6*time.Second),

		ModerationPolicy: failurePolicy(getEnv("MODERATION_FAILURE_POLICY", "open")),
		InjectionPolicy:  failurePolicy(getEnv("INJECTION_FAILURE_POLICY", "open")),
		AbuseGatePolicy:  failurePolicy(getEnv("ABUSE_GATE_FAILURE_POLICY", "closed")),

		StrikesForSuspension: getEnvAsInt("STRIKES_FOR_SUSPENSION", 3),
		SuspensionsForBan:    getEnvAsInt("SUSPENSIONS_FOR_BAN", 3),
		SuspensionDuration:   getEnvAsDuration("SUSPENSION_DURATION", 7*24*time.Hour),

		AnonRateLimitPerSec: getEnvAsFloat("ANON_RATE_LIMIT_PER_SEC", 0.5),
		AnonRateLimitBurst:  getEnvAsInt("ANON_RATE_LIMIT_BURST", 5),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
	}
}

func failurePolicy(v string) FailurePolicy {
	if strings.EqualFold(strings.TrimSpace(v), "closed") {
		return FailClosed
	}
	return FailOpen
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
