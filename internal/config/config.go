package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Providers struct {
		Evolution EvolutionConfig `mapstructure:"evolution"`
		Meta      MetaConfig      `mapstructure:"meta"`
	} `mapstructure:"providers"`
	NATS struct {
		URL             string `mapstructure:"url"`
		NotifyStream    string `mapstructure:"notifyStream"`
		NotifySubject   string `mapstructure:"notifySubject"`
		NotifyMaxAgeDay int64  `mapstructure:"notifyMaxAgeDay"`
	} `mapstructure:"nats"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	WorkerPools struct {
		Responder ResponderWorkerPoolConfig `mapstructure:"responder"`
	} `mapstructure:"workerPools"`
	RateLimit struct {
		Enabled bool    `mapstructure:"enabled"`
		RPS     float64 `mapstructure:"rps"`
		Burst   int     `mapstructure:"burst"`
	} `mapstructure:"rateLimit"`
}

// SchedulerConfig controls the pending-response dispatcher.
type SchedulerConfig struct {
	PollInterval    time.Duration `mapstructure:"pollInterval"`    // how often due rows are scanned
	BatchSize       int           `mapstructure:"batchSize"`       // max due rows claimed per scan
	DefaultWaitSecs int           `mapstructure:"defaultWaitSecs"` // debounce window when the agent has none
}

// LLMConfig holds connection settings for the OpenAI-compatible endpoint.
// API keys are per tenant and live in the database, not here.
type LLMConfig struct {
	BaseURL string        `mapstructure:"baseURL"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EvolutionConfig holds settings for the Evolution API bridge.
type EvolutionConfig struct {
	BaseURL string        `mapstructure:"baseURL"`
	APIKey  string        `mapstructure:"apiKey"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MetaConfig holds settings for the Meta Graph API (WhatsApp Cloud / Instagram).
type MetaConfig struct {
	BaseURL     string        `mapstructure:"baseURL"`
	VerifyToken string        `mapstructure:"verifyToken"` // webhook GET verification
	AppSecret   string        `mapstructure:"appSecret"`   // HMAC signature validation, optional
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ResponderWorkerPoolConfig holds configuration for the response worker pool
type ResponderWorkerPoolConfig struct {
	PoolSize   int           `mapstructure:"poolSize"`   // Number of workers
	QueueSize  int           `mapstructure:"queueSize"`  // Task queue buffer size
	MaxBlock   time.Duration `mapstructure:"maxBlock"`   // Max time to block when submitting if queue full
	ExpiryTime time.Duration `mapstructure:"expiryTime"` // Idle worker expiry time
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)

	v.SetDefault("scheduler.pollInterval", time.Second)
	v.SetDefault("scheduler.batchSize", 50)
	v.SetDefault("scheduler.defaultWaitSecs", 5)

	v.SetDefault("llm.baseURL", "https://api.openai.com/v1")
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("providers.evolution.timeout", 15*time.Second)
	v.SetDefault("providers.meta.baseURL", "https://graph.facebook.com/v21.0")
	v.SetDefault("providers.meta.timeout", 15*time.Second)

	v.SetDefault("nats.notifyStream", "crm_notifications")
	v.SetDefault("nats.notifySubject", "v1.notifications")
	v.SetDefault("nats.notifyMaxAgeDay", 7)

	v.SetDefault("workerPools.responder.poolSize", 10)
	v.SetDefault("workerPools.responder.queueSize", 1000)
	v.SetDefault("workerPools.responder.maxBlock", time.Second)
	v.SetDefault("workerPools.responder.expiryTime", time.Minute)

	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.rps", 20)
	v.SetDefault("rateLimit.burst", 60)

	// Config file settings
	v.SetConfigName("default")
	v.SetConfigType("yaml")

	// Add lookup paths
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.crm-inbound-processor")
	v.AddConfigPath("/etc/crm-inbound-processor")

	// Try to read from config file
	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map environment variables to config fields
	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		v.Set("nats.url", url)
	}
	if key := os.Getenv("EVOLUTION_API_KEY"); key != "" {
		v.Set("providers.evolution.apiKey", key)
	}
	if secret := os.Getenv("META_APP_SECRET"); secret != "" {
		v.Set("providers.meta.appSecret", secret)
	}
	if token := os.Getenv("META_VERIFY_TOKEN"); token != "" {
		v.Set("providers.meta.verifyToken", token)
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		path := append(parts, tag)
		key := strings.Join(path, ".")

		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		_ = v.BindEnv(key)
	}
}
