package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	GRPC     GRPCConfig
	Auth     AuthConfig
	Broker   BrokerConfig
	Routing  RoutingConfig
	Geocode  GeocodeConfig
	Tracking TrackingConfig
}

// DatabaseConfig selects and configures the document store backend.
type DatabaseConfig struct {
	Backend  string // "sqlite" | "mongo"
	Path     string // SQLite database file path
	MongoURI string // MongoDB connection string
	MongoDB  string // MongoDB database name
}

// GRPCConfig contains gRPC server settings.
type GRPCConfig struct {
	Address string // gRPC server listen address (e.g., ":50051")
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	JWTSecret string // JWT signing secret
}

// BrokerConfig contains the notification broker settings. An empty URL
// disables AMQP publishing; notifications are then logged only.
type BrokerConfig struct {
	AMQPURL string
}

// RoutingConfig contains routing service settings.
type RoutingConfig struct {
	OSRMBaseURL string
	Timeout     time.Duration
	ReplanM     float64 // driver displacement that invalidates a cached route
}

// GeocodeConfig contains address lookup settings.
type GeocodeConfig struct {
	NominatimBaseURL string
	UserAgent        string
	Timeout          time.Duration
}

// TrackingConfig contains live-tracking thresholds.
type TrackingConfig struct {
	MaxAccuracyM  float64       // GPS samples worse than this are dropped
	WriteInterval time.Duration // driver location write-through cadence
	PushGrace     time.Duration // push silence before poll fallback
	PollInterval  time.Duration // poll cadence while push is quiet
}

// Load loads configuration from the environment (plus a .env file if one
// exists) with sensible defaults.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	// Validate critical settings
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set; required for production")
	}
	if cfg.Database.Backend == "mongo" && cfg.Database.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI is required when DB_BACKEND=mongo")
	}
	return cfg, nil
}

// LoadWithDefaults is like Load but uses a safe default for JWT_SECRET in development.
// WARNING: Only use in development! Use Load() in production.
func LoadWithDefaults() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = "dev-secret-change-me"
	}
	return cfg, nil
}

func load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Backend:  getEnv("DB_BACKEND", "sqlite"),
			Path:     getEnv("DB_PATH", "app.db"),
			MongoURI: getEnv("MONGO_URI", ""),
			MongoDB:  getEnv("MONGO_DB", "fulfillment"),
		},
		GRPC: GRPCConfig{
			Address: getEnv("GRPC_ADDRESS", ":50051"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Broker: BrokerConfig{
			AMQPURL: getEnv("AMQP_URL", ""),
		},
	}
	if cfg.Database.Backend != "sqlite" && cfg.Database.Backend != "mongo" {
		return nil, fmt.Errorf("invalid DB_BACKEND %q (want sqlite or mongo)", cfg.Database.Backend)
	}

	var err error
	if cfg.Routing, err = loadRouting(); err != nil {
		return nil, err
	}
	if cfg.Geocode, err = loadGeocode(); err != nil {
		return nil, err
	}
	if cfg.Tracking, err = loadTracking(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRouting() (RoutingConfig, error) {
	timeout, err := getEnvDuration("ROUTE_TIMEOUT", 6*time.Second)
	if err != nil {
		return RoutingConfig{}, err
	}
	replan, err := getEnvFloat("ROUTE_REPLAN_METERS", 100)
	if err != nil {
		return RoutingConfig{}, err
	}
	return RoutingConfig{
		OSRMBaseURL: getEnv("OSRM_BASE_URL", "https://router.project-osrm.org"),
		Timeout:     timeout,
		ReplanM:     replan,
	}, nil
}

func loadGeocode() (GeocodeConfig, error) {
	timeout, err := getEnvDuration("GEOCODE_TIMEOUT", 6*time.Second)
	if err != nil {
		return GeocodeConfig{}, err
	}
	return GeocodeConfig{
		NominatimBaseURL: getEnv("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org"),
		UserAgent:        getEnv("GEOCODE_USER_AGENT", "order-fulfillment-tracking/1.0"),
		Timeout:          timeout,
	}, nil
}

func loadTracking() (TrackingConfig, error) {
	accuracy, err := getEnvFloat("TRACKING_MAX_ACCURACY_METERS", 50)
	if err != nil {
		return TrackingConfig{}, err
	}
	write, err := getEnvDuration("TRACKING_WRITE_INTERVAL", 3*time.Second)
	if err != nil {
		return TrackingConfig{}, err
	}
	grace, err := getEnvDuration("TRACKING_PUSH_GRACE", 15*time.Second)
	if err != nil {
		return TrackingConfig{}, err
	}
	poll, err := getEnvDuration("TRACKING_POLL_INTERVAL", 10*time.Second)
	if err != nil {
		return TrackingConfig{}, err
	}
	return TrackingConfig{
		MaxAccuracyM:  accuracy,
		WriteInterval: write,
		PushGrace:     grace,
		PollInterval:  poll,
	}, nil
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// getEnvDuration retrieves an environment variable as a time.Duration with a default fallback.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		return d, nil
	}
	return defaultVal, nil
}

// getEnvFloat retrieves an environment variable as a float64 with a default fallback.
func getEnvFloat(key string, defaultVal float64) (float64, error) {
	if value, exists := os.LookupEnv(key); exists {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %w", key, err)
		}
		return f, nil
	}
	return defaultVal, nil
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	return fmt.Sprintf("Config{DB: %s/%s, gRPC: %s, Auth: *** (masked) ***}",
		c.Database.Backend, c.Database.Path, c.GRPC.Address)
}
