package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Store drivers
const (
	StoreFirestore = "firestore"
	StoreMongo     = "mongo"
	StoreMemory    = "memory"
)

// Push providers
const (
	PushFCM       = "fcm"
	PushOneSignal = "onesignal"
	PushNone      = "none"
)

// WatchedRepairInterval is the sweep interval used when the MongoDB read watcher runs
// without REPAIR_INTERVAL. A change stream does not redeliver an event whose
// reconciliation failed, so the sweep is what eventually removes the entry.
const WatchedRepairInterval = time.Hour

// Config holds all settings read from the environment
type Config struct {
	Env  string `envconfig:"ENV" default:"development"`
	Port string `envconfig:"PORT" default:"8080"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"firestore"`
	MongoURI    string `envconfig:"MONGO_URI"`
	MongoURIAlt string `envconfig:"MONGODB_URI"`
	DBName      string `envconfig:"DB_NAME" default:"barrim"`

	FirebaseProjectID         string `envconfig:"FIREBASE_PROJECT_ID" default:"barrim-93482"`
	FirebaseCredentialsBase64 string `envconfig:"FIREBASE_CREDENTIALS_BASE64"`
	GoogleCredentialsFile     string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	PushGuardTTL  time.Duration `envconfig:"PUSH_GUARD_TTL" default:"168h"`

	PushProvider     string  `envconfig:"PUSH_PROVIDER" default:"fcm"`
	FCMTopic         string  `envconfig:"FCM_TOPIC" default:"all"`
	OneSignalAppID   string  `envconfig:"ONESIGNAL_APP_ID"`
	OneSignalAPIKey  string  `envconfig:"ONESIGNAL_API_KEY"`
	OneSignalURL     string  `envconfig:"ONESIGNAL_API_URL" default:"https://onesignal.com/api/v1/notifications"`
	OneSignalRateSec float64 `envconfig:"ONESIGNAL_RATE_PER_SEC" default:"10"`

	FallbackItemLink       string        `envconfig:"FALLBACK_ITEM_LINK" default:"https://your-app-url.com/products"`
	BatchSize              int           `envconfig:"BATCH_SIZE" default:"500"`
	IndexUpdateConcurrency int           `envconfig:"INDEX_UPDATE_CONCURRENCY" default:"32"`
	RepairInterval         time.Duration `envconfig:"REPAIR_INTERVAL" default:"0"`
	WatchMongoReads        bool          `envconfig:"WATCH_MONGO_READS" default:"true"`

	JWTSecret    string `envconfig:"JWT_SECRET"`
	TriggerToken string `envconfig:"TRIGGER_TOKEN"`
}

// Load reads .env (outside production) and decodes the environment into a Config
func Load() (*Config, error) {
	if os.Getenv("ENV") != "production" {
		if err := godotenv.Load(); err != nil {
			log.Warn().Msg(".env file not found")
		}
	}

	c := &Config{}
	if err := envconfig.Process("", c); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if c.MongoURI == "" {
		c.MongoURI = c.MongoURIAlt
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.WatchesMongoReads() && c.RepairInterval <= 0 {
		c.RepairInterval = WatchedRepairInterval
	}
}

// WatchesMongoReads reports whether read transitions come from the MongoDB change stream
func (c *Config) WatchesMongoReads() bool {
	return c.StoreDriver == StoreMongo && c.WatchMongoReads
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreFirestore, StoreMemory:
	case StoreMongo:
		if c.MongoURI == "" && !c.IsDevelopment() {
			return fmt.Errorf("MONGO_URI or MONGODB_URI environment variable is required for production")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.PushProvider {
	case PushFCM, PushNone:
	case PushOneSignal:
		if c.OneSignalAppID == "" || c.OneSignalAPIKey == "" {
			return fmt.Errorf("ONESIGNAL_APP_ID and ONESIGNAL_API_KEY are required for the onesignal push provider")
		}
	default:
		return fmt.Errorf("unknown PUSH_PROVIDER %q", c.PushProvider)
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	return nil
}

// IsDevelopment reports whether the service runs in a dev environment
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev"
}
