package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every setting the client reads from the environment.
type Config struct {
	App      AppConfig
	API      APIConfig
	Socket   SocketConfig
	Firebase FirebaseConfig
	Storage  StorageConfig
	Location LocationConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	app := loadAppConfig()

	api, err := loadAPIConfig()
	if err != nil {
		return nil, err
	}

	socket, err := loadSocketConfig(api.BaseURL)
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	location, err := loadLocationConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		App:      app,
		API:      api,
		Socket:   socket,
		Firebase: loadFirebaseConfig(),
		Storage:  storage,
		Location: location,
	}, nil
}

// AppConfig describes the runtime environment.
type AppConfig struct {
	Env   string
	Debug bool
}

// Production reports whether APP_ENV selects production behaviour.
func (c AppConfig) Production() bool {
	return c.Env == "production"
}

func loadAppConfig() AppConfig {
	env := strings.ToLower(getEnvOrDefault("APP_ENV", "development"))
	return AppConfig{Env: env, Debug: env != "production"}
}

// APIConfig describes the REST gateway.
type APIConfig struct {
	BaseURL       string
	Timeout       time.Duration
	UploadTimeout time.Duration
}

func loadAPIConfig() (APIConfig, error) {
	baseURL := strings.TrimRight(getEnvOrDefault("API_URL", "http://localhost:3000"), "/")
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return APIConfig{}, fmt.Errorf("invalid API_URL value %q: %w", baseURL, err)
	}

	timeout, err := parseDurationEnv("API_TIMEOUT", 30*time.Second)
	if err != nil {
		return APIConfig{}, err
	}

	uploadTimeout, err := parseDurationEnv("UPLOAD_TIMEOUT", 60*time.Second)
	if err != nil {
		return APIConfig{}, err
	}

	return APIConfig{BaseURL: baseURL, Timeout: timeout, UploadTimeout: uploadTimeout}, nil
}

// SocketConfig describes the realtime connection.
type SocketConfig struct {
	URL               string
	ConnectTimeout    time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
}

func loadSocketConfig(apiURL string) (SocketConfig, error) {
	raw := strings.TrimSpace(os.Getenv("SOCKET_URL"))
	if raw == "" {
		raw = strings.TrimRight(apiURL, "/") + "/ws"
	}
	socketURL, err := websocketURL(raw)
	if err != nil {
		return SocketConfig{}, err
	}

	connectTimeout, err := parseDurationEnv("SOCKET_CONNECT_TIMEOUT", 10*time.Second)
	if err != nil {
		return SocketConfig{}, err
	}

	attempts := 5
	if override, err := parseOptionalIntEnv("SOCKET_RECONNECT_ATTEMPTS"); err != nil {
		return SocketConfig{}, err
	} else if override != nil {
		if *override < 0 {
			attempts = 0
		} else {
			attempts = *override
		}
	}

	delay, err := parseDurationEnv("SOCKET_RECONNECT_DELAY", 2*time.Second)
	if err != nil {
		return SocketConfig{}, err
	}

	heartbeat, err := parseDurationEnv("HEARTBEAT_INTERVAL", 15*time.Second)
	if err != nil {
		return SocketConfig{}, err
	}

	return SocketConfig{
		URL:               socketURL,
		ConnectTimeout:    connectTimeout,
		ReconnectAttempts: attempts,
		ReconnectDelay:    delay,
		HeartbeatInterval: heartbeat,
	}, nil
}

// websocketURL rewrites http(s) URLs to ws(s) so SOCKET_URL may reuse the API origin.
func websocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid SOCKET_URL value %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid SOCKET_URL scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// FirebaseConfig carries the identity provider project settings.
type FirebaseConfig struct {
	APIKey            string
	AuthDomain        string
	ProjectID         string
	StorageBucket     string
	MessagingSenderID string
	AppID             string
	EmulatorHost      string
}

// Enabled reports whether the minimum identity provider settings are present.
func (c FirebaseConfig) Enabled() bool {
	return c.APIKey != "" && c.ProjectID != ""
}

func loadFirebaseConfig() FirebaseConfig {
	return FirebaseConfig{
		APIKey:            strings.TrimSpace(os.Getenv("FIREBASE_API_KEY")),
		AuthDomain:        strings.TrimSpace(os.Getenv("FIREBASE_AUTH_DOMAIN")),
		ProjectID:         strings.TrimSpace(os.Getenv("FIREBASE_PROJECT_ID")),
		StorageBucket:     strings.TrimSpace(os.Getenv("FIREBASE_STORAGE_BUCKET")),
		MessagingSenderID: strings.TrimSpace(os.Getenv("FIREBASE_MESSAGING_SENDER_ID")),
		AppID:             strings.TrimSpace(os.Getenv("FIREBASE_APP_ID")),
		EmulatorHost:      strings.TrimSpace(os.Getenv("FIREBASE_AUTH_EMULATOR_HOST")),
	}
}

// StorageConfig locates the local state file.
type StorageConfig struct {
	Path string
}

func loadStorageConfig() (StorageConfig, error) {
	if path := strings.TrimSpace(os.Getenv("STATE_PATH")); path != "" {
		return StorageConfig{Path: path}, nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return StorageConfig{}, fmt.Errorf("resolve config dir: %w", err)
	}
	return StorageConfig{Path: filepath.Join(dir, "maps-app", "state.db")}, nil
}

// LocationConfig holds the fallback position and watch cadence.
type LocationConfig struct {
	DefaultLat     float64
	DefaultLng     float64
	UpdateInterval time.Duration
}

func loadLocationConfig() (LocationConfig, error) {
	lat, err := parseOptionalFloatEnv("DEFAULT_LAT")
	if err != nil {
		return LocationConfig{}, err
	}
	lng, err := parseOptionalFloatEnv("DEFAULT_LNG")
	if err != nil {
		return LocationConfig{}, err
	}
	interval, err := parseDurationEnv("LOCATION_UPDATE_INTERVAL", 30*time.Second)
	if err != nil {
		return LocationConfig{}, err
	}

	cfg := LocationConfig{DefaultLat: -34.6037, DefaultLng: -58.3816, UpdateInterval: interval}
	if lat != nil {
		cfg.DefaultLat = *lat
	}
	if lng != nil {
		cfg.DefaultLng = *lng
	}
	if cfg.DefaultLat < -90 || cfg.DefaultLat > 90 || cfg.DefaultLng < -180 || cfg.DefaultLng > 180 {
		return LocationConfig{}, fmt.Errorf("default location out of range: %v,%v", cfg.DefaultLat, cfg.DefaultLng)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// parseDurationEnv accepts Go durations ("15s") or a bare number of milliseconds.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if ms, err := strconv.Atoi(raw); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
