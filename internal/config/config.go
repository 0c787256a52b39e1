package config

import (
	"encoding/json"
	"os"

	"github.com/caarlos0/env/v10"
	"github.com/dotrep/contribchain/pkg/types"
)

type (
	Config struct {
		Production bool    `json:"production" env:"PRODUCTION" envDefault:"false"`
		PrettyLogs bool    `json:"pretty_logs" env:"PRETTY_LOGS" envDefault:"false"`
		LogLevel   string  `json:"log_level" env:"LOG_LEVEL" envDefault:"info"`
		Metrics    Metrics `json:"metrics" envPrefix:"METRICS_"`

		MongoDB      MongoDB      `json:"mongodb" envPrefix:"MONGODB_"`
		Queue        Queue        `json:"queue" envPrefix:"QUEUE_"`
		Ingest       Ingest       `json:"ingest" envPrefix:"INGEST_"`
		Anchor       Anchor       `json:"anchor" envPrefix:"ANCHOR_"`
		ContentStore ContentStore `json:"content_store" envPrefix:"CONTENT_STORE_"`
		Ledger       Ledger       `json:"ledger" envPrefix:"LEDGER_"`
		GitHub       GitHub       `json:"github" envPrefix:"GITHUB_"`
	}

	Metrics struct {
		Enabled bool   `json:"enabled" env:"ENABLED" envDefault:"true"`
		Address string `json:"address" env:"ADDRESS" envDefault:"0.0.0.0:9090"`
	}

	MongoDB struct {
		URI          string `json:"uri" env:"URI"`
		DatabaseName string `json:"database_name" env:"DATABASE_NAME" envDefault:"contribchain"`
	}

	Queue struct {
		IngestPath  string `json:"ingest_path" env:"INGEST_PATH" envDefault:"ingest.db"`
		StagingPath string `json:"staging_path" env:"STAGING_PATH" envDefault:"staging.db"`
	}

	Ingest struct {
		Concurrency    int                      `json:"concurrency" env:"CONCURRENCY" envDefault:"5"`
		MaxAttempts    int                      `json:"max_attempts" env:"MAX_ATTEMPTS" envDefault:"3"`
		PollInterval   types.MarshalledDuration `json:"poll_interval" env:"POLL_INTERVAL" envDefault:"5s"`
		JobTimeout     types.MarshalledDuration `json:"job_timeout" env:"JOB_TIMEOUT" envDefault:"30s"`
		RateLimit      float64                  `json:"rate_limit" env:"RATE_LIMIT" envDefault:"10"`
		RateLimitBurst int                      `json:"rate_limit_burst" env:"RATE_LIMIT_BURST" envDefault:"20"`
	}

	Anchor struct {
		Interval     types.MarshalledDuration `json:"interval" env:"INTERVAL" envDefault:"5m"`
		BatchSize    int                      `json:"batch_size" env:"BATCH_SIZE" envDefault:"100"`
		CycleTimeout types.MarshalledDuration `json:"cycle_timeout" env:"CYCLE_TIMEOUT" envDefault:"2m"`
		RunAtStartup bool                     `json:"run_at_startup" env:"RUN_AT_STARTUP" envDefault:"false"`
	}

	ContentStore struct {
		Endpoint    string                   `json:"endpoint" env:"ENDPOINT"`
		Timeout     types.MarshalledDuration `json:"timeout" env:"TIMEOUT" envDefault:"30s"`
		MaxAttempts int                      `json:"max_attempts" env:"MAX_ATTEMPTS" envDefault:"3"`
	}

	// Ledger is optional: an empty endpoint disables chain anchoring
	// entirely, leaving batches content-anchored only.
	Ledger struct {
		Endpoint    string                   `json:"endpoint" env:"ENDPOINT"`
		Timeout     types.MarshalledDuration `json:"timeout" env:"TIMEOUT" envDefault:"30s"`
		MaxAttempts int                      `json:"max_attempts" env:"MAX_ATTEMPTS" envDefault:"3"`
	}

	// GitHub is optional: an empty token disables the contribution poller,
	// in which case events arrive only via externally-enqueued jobs.
	GitHub struct {
		Token        string                   `json:"token" env:"TOKEN"`
		Endpoint     string                   `json:"endpoint" env:"ENDPOINT" envDefault:"https://api.github.com/graphql"`
		Logins       []string                 `json:"logins" env:"LOGINS" envSeparator:","`
		PollInterval types.MarshalledDuration `json:"poll_interval" env:"POLL_INTERVAL" envDefault:"10m"`
		Timeout      types.MarshalledDuration `json:"timeout" env:"TIMEOUT" envDefault:"30s"`
		MaxAttempts  int                      `json:"max_attempts" env:"MAX_ATTEMPTS" envDefault:"3"`
	}
)

func Load() (Config, error) {
	var conf Config

	// Try to load JSON config file, but fallback to environment variables if it does not exist
	if _, err := os.Stat("config.json"); err == nil {
		bytes, err := os.ReadFile("config.json")
		if err != nil {
			return Config{}, err
		}

		if err := json.Unmarshal(bytes, &conf); err != nil {
			return Config{}, err
		}

		return conf, nil
	}

	if err := env.Parse(&conf); err != nil {
		return Config{}, err
	}

	return conf, nil
}
