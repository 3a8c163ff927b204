package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ----------------------------
	// Relay
	// ----------------------------
	RelayProvider string `envconfig:"RELAY_PROVIDER" default:"smtp"`
	SMTPHost      string `envconfig:"SMTP_HOST" default:"smtp.gmail.com"`
	SMTPPort      int    `envconfig:"SMTP_PORT" default:"587"`
	DialRetries   int    `envconfig:"DIAL_RETRIES" default:"3"`

	// ----------------------------
	// Workers
	// ----------------------------
	WorkerCount int           `envconfig:"WORKER_COUNT" default:"5"`
	RateLimit   int           `envconfig:"RATE_LIMIT" default:"10"`
	SendTimeout time.Duration `envconfig:"SEND_TIMEOUT" default:"30s"`

	// ----------------------------
	// Submissions
	// ----------------------------
	RequireAttachment bool  `envconfig:"REQUIRE_ATTACHMENT" default:"true"`
	MaxUploadBytes    int64 `envconfig:"MAX_UPLOAD_BYTES" default:"33554432"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort     string   `envconfig:"API_PORT" default:"8080"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Logging
	// ----------------------------
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// ----------------------------
	// Drafting
	// ----------------------------
	GoogleCloudProject  string `envconfig:"GOOGLE_CLOUD_PROJECT"`
	GoogleCloudLocation string `envconfig:"GOOGLE_CLOUD_LOCATION" default:"us-central1"`
	GenerationModel     string `envconfig:"GENERATION_MODEL" default:"gemini-1.5-flash"`

	// ----------------------------
	// Scoring
	// ----------------------------
	ScoringURL     string `envconfig:"SCORING_URL" default:"http://127.0.0.1:5000/predict-score"`
	ScoringRetries int    `envconfig:"SCORING_RETRIES" default:"2"`
}

// Load reads an optional .env file, then the environment.
// Variables already set in the environment win over .env values.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	var cfg Config
	err := envconfig.Process("", &cfg)
	return &cfg, err
}

func (c *Config) DraftingEnabled() bool {
	return c.GoogleCloudProject != ""
}
