package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Assistant AssistantConfig `yaml:"assistant"`
	Run       RunConfig       `yaml:"run"`
	Server    ServerConfig    `yaml:"server"`
	Journal   JournalConfig   `yaml:"journal"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// AssistantConfig holds settings for the hosted assistant service.
type AssistantConfig struct {
	APIKey         string               `yaml:"api_key"`
	BaseURL        string               `yaml:"base_url"`
	Organization   string               `yaml:"organization,omitempty"`
	PersonaID      string               `yaml:"persona_id,omitempty"` // empty = create a persona at startup
	ConnTimeout    time.Duration        `yaml:"conn_timeout"`
	RespTimeout    time.Duration        `yaml:"resp_timeout"`
	Pool           PoolConfig           `yaml:"pool"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// Configured reports whether the required credential is present.
func (a AssistantConfig) Configured() bool {
	return strings.TrimSpace(a.APIKey) != ""
}

// CircuitBreakerConfig holds circuit breaker settings for the assistant service.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for the assistant service.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// RunConfig bounds run polling and concurrency.
type RunConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	MaxAttempts   int           `yaml:"max_attempts"`   // 0 = bounded by Timeout only
	Timeout       time.Duration `yaml:"timeout"`        // 0 = bounded by MaxAttempts only
	MaxConcurrent int           `yaml:"max_concurrent"` // 0 = unlimited
}

// ServerConfig holds HTTP endpoint settings.
type ServerConfig struct {
	Addr         string          `yaml:"addr"`
	ChatPath     string          `yaml:"chat_path"`
	MaxBodyBytes int64           `yaml:"max_body_bytes"`
	ReadTimeout  time.Duration   `yaml:"read_timeout"`
	WriteTimeout time.Duration   `yaml:"write_timeout"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	Enabled        bool     `yaml:"enabled"`
	RequestsPerMin int      `yaml:"requests_per_min"`
	Burst          int      `yaml:"burst"`
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
}

// JournalConfig holds run journal settings.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// defaultDataDir returns the persistent data directory under $HOME/.finadvisor.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".finadvisor")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Assistant: AssistantConfig{
			BaseURL:     "https://api.openai.com/v1",
			ConnTimeout: 30 * time.Second,
			RespTimeout: 60 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Run: RunConfig{
			PollInterval: time.Second,
			MaxAttempts:  120,
			Timeout:      2 * time.Minute,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ChatPath:     "/api/chat",
			MaxBodyBytes: 1 << 20,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 150 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:        true,
				RequestsPerMin: 60,
				Burst:          10,
			},
		},
		Journal: JournalConfig{
			Enabled: false,
			Path:    filepath.Join(defaultDataDir(), "runs.db"),
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file is not an error: defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := decryptSecrets(cfg, os.Getenv("FINADVISOR_CONFIG_KEY")); err != nil {
		return nil, fmt.Errorf("decrypt secrets: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps environment variables to config fields. The
// OPENAI_* names are honoured for compatibility with existing deployments;
// FINADVISOR_* covers everything else.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Assistant.APIKey = v
	}
	if v := os.Getenv("OPENAI_ASSISTANT_ID"); v != "" {
		cfg.Assistant.PersonaID = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Assistant.BaseURL = v
	}
	if v := os.Getenv("OPENAI_ORG_ID"); v != "" {
		cfg.Assistant.Organization = v
	}
	if v := os.Getenv("FINADVISOR_CIRCUIT_BREAKER_ENABLED"); v != "" {
		cfg.Assistant.CircuitBreaker.Enabled = v == "true"
	}
	if v := os.Getenv("FINADVISOR_RUN_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Run.PollInterval = d
		}
	}
	if v := os.Getenv("FINADVISOR_RUN_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Run.MaxAttempts = n
		}
	}
	if v := os.Getenv("FINADVISOR_RUN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.Run.Timeout = d
		}
	}
	if v := os.Getenv("FINADVISOR_RUN_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Run.MaxConcurrent = n
		}
	}
	if v := os.Getenv("FINADVISOR_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("FINADVISOR_RATE_LIMIT_ENABLED"); v != "" {
		cfg.Server.RateLimit.Enabled = v == "true"
	}
	if v := os.Getenv("FINADVISOR_TRUSTED_PROXIES"); v != "" {
		cfg.Server.RateLimit.TrustedProxies = splitAndTrim(v, ",")
	}
	if v := os.Getenv("FINADVISOR_JOURNAL_ENABLED"); v == "true" {
		cfg.Journal.Enabled = true
	}
	if v := os.Getenv("FINADVISOR_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("FINADVISOR_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("FINADVISOR_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("FINADVISOR_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("FINADVISOR_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// decryptSecrets decrypts an "enc:..." assistant API key. An encrypted key
// without a passphrase is an error rather than being sent upstream verbatim.
func decryptSecrets(cfg *Config, passphrase string) error {
	key := cfg.Assistant.APIKey
	if !strings.HasPrefix(key, "enc:") {
		return nil
	}
	if passphrase == "" {
		return fmt.Errorf("assistant api_key is encrypted but FINADVISOR_CONFIG_KEY is not set")
	}
	decrypted, err := DecryptValue(strings.TrimPrefix(key, "enc:"), passphrase)
	if err != nil {
		return fmt.Errorf("assistant api_key: %w", err)
	}
	cfg.Assistant.APIKey = decrypted
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
