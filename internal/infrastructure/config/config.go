// Package config provides configuration loading for the metric-harvest application.
// It handles loading harvest settings, the optional policy file, ClickHouse
// export settings and the clone token from environment variables and HashiCorp Vault.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/vault"
	"gopkg.in/yaml.v3"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
	"github.com/MyCarrier-DevOps/metric-harvest/internal/usecases"
)

// Environment variable names.
const (
	EnvDataDir          = "HARVEST_DATA_DIR"
	EnvSourceExtensions = "HARVEST_SOURCE_EXTENSIONS"
	EnvOrder            = "HARVEST_ORDER"
	EnvResume           = "HARVEST_RESUME"
	EnvAnalyzerCommand  = "HARVEST_ANALYZER_CMD"

	// EnvConfigFile is the path to an optional YAML file with harvest and policy settings.
	EnvConfigFile = "HARVEST_CONFIG"

	// EnvLogLevel is the log level (debug, info, error).
	EnvLogLevel = "LOG_LEVEL"

	// EnvLogAppName is the application name for log context.
	EnvLogAppName = "LOG_APP_NAME"

	// EnvGitToken is the HTTP basic auth token used for cloning.
	EnvGitToken = "GIT_TOKEN"

	// EnvVaultGitTokenPath is the path in Vault KV where the clone token is stored.
	// A "#key" suffix selects the secret key (defaults to "token").
	EnvVaultGitTokenPath = "VAULT_GIT_TOKEN_PATH"

	// EnvVaultGitTokenMount is the Vault KV mount point (defaults to "secret").
	EnvVaultGitTokenMount = "VAULT_GIT_TOKEN_MOUNT"

	EnvClickHouseAddr     = "CLICKHOUSE_ADDR"
	EnvClickHouseDatabase = "CLICKHOUSE_DATABASE"
	EnvClickHouseUsername = "CLICKHOUSE_USERNAME"
	EnvClickHousePassword = "CLICKHOUSE_PASSWORD"
)

// Default values.
const (
	DefaultLogLevel        = "info"
	DefaultLogAppName      = "metric-harvest"
	DefaultVaultMount      = "secret"
	DefaultVaultTokenKey   = "token"
	DefaultAnalyzerCommand = "radon"
	DefaultClickHouseDB    = "metrics"

	OrderOldestFirst = "oldest-first"
	OrderNewestFirst = "newest-first"
)

// Configuration errors.
var (
	// ErrInvalidConfig indicates a setting has a value outside its allowed set.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConfigFileNotFound indicates HARVEST_CONFIG points to a missing file.
	ErrConfigFileNotFound = errors.New("configuration file not found")

	// ErrVaultClientFailed indicates failure to create or authenticate with Vault.
	ErrVaultClientFailed = errors.New("failed to create Vault client")

	// ErrVaultSecretNotFound indicates the clone token was not found in Vault.
	ErrVaultSecretNotFound = errors.New("git token not found in Vault")

	// ErrClickHouseNotConfigured indicates a ClickHouse export was requested without an address.
	ErrClickHouseNotConfigured = errors.New("clickhouse export requires " + EnvClickHouseAddr)
)

// VaultClient defines the interface for Vault operations.
// This interface allows for dependency injection and testing.
type VaultClient interface {
	// GetKVSecret retrieves a secret from Vault's KV v2 secrets engine.
	GetKVSecret(ctx context.Context, path, mount string) (map[string]interface{}, error)
}

// VaultClientFactory creates a VaultClient using AppRole authentication.
// This is the default factory used in production.
type VaultClientFactory func(ctx context.Context) (VaultClient, error)

// DefaultVaultClientFactory creates a VaultClient using goLibMyCarrier/vault with AppRole auth.
func DefaultVaultClientFactory(ctx context.Context) (VaultClient, error) {
	// Uses: VAULT_ADDRESS, VAULT_ROLE_ID, VAULT_SECRET_ID
	vaultConfig, err := vault.VaultLoadConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVaultClientFailed, err)
	}

	client, err := vault.CreateVaultClient(ctx, vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVaultClientFailed, err)
	}

	return client, nil
}

// ClickHouse holds the merged-results export target.
type ClickHouse struct {
	Addr     string
	Database string
	Username string
	Password string
}

// Enabled reports whether an address is configured.
func (c ClickHouse) Enabled() bool {
	return c.Addr != ""
}

// Config holds all application configuration.
type Config struct {
	// DataDir is the root of repos/ and results/.
	DataDir string

	// Extensions are the source file extensions that make a commit relevant.
	Extensions []string

	// NewestFirst visits commits from the branch head backwards.
	NewestFirst bool

	// Resume is the resume mode for existing result tables.
	Resume usecases.ResumeMode

	// AnalyzerCommand is the static analyzer executable.
	AnalyzerCommand string

	// Policy holds the circuit-breaker thresholds.
	Policy usecases.PolicyConfig

	// GitToken is the optional clone token.
	GitToken string

	// ClickHouse holds the export target.
	ClickHouse ClickHouse

	// LogLevel is the logging level (debug, info, error).
	LogLevel string

	// LogAppName is the application name for log context.
	LogAppName string
}

// fileConfig is the layout of the HARVEST_CONFIG file.
type fileConfig struct {
	DataDir         string                `yaml:"data_dir"`
	Extensions      []string              `yaml:"extensions"`
	Order           string                `yaml:"order"`
	Resume          string                `yaml:"resume"`
	AnalyzerCommand string                `yaml:"analyzer_command"`
	Policy          usecases.PolicyConfig `yaml:"policy"`
}

// Load loads the application configuration from environment variables.
//
// Settings are resolved in order: built-in defaults, the YAML file named by
// HARVEST_CONFIG, then environment variables. The clone token is read from
// Vault when VAULT_GIT_TOKEN_PATH is set (requires VAULT_ADDRESS, VAULT_ROLE_ID
// and VAULT_SECRET_ID) and from GIT_TOKEN otherwise.
func Load() (*Config, error) {
	return LoadWithVaultClient(context.Background(), nil)
}

// LoadWithVaultClient loads configuration using the provided VaultClient factory.
// If vaultClientFactory is nil, DefaultVaultClientFactory is used.
// This function enables dependency injection for testing.
func LoadWithVaultClient(ctx context.Context, vaultClientFactory VaultClientFactory) (*Config, error) {
	cfg := &Config{
		DataDir:         domain.DefaultDataDir,
		Extensions:      []string{domain.DefaultSourceExtension},
		Resume:          usecases.ResumeBounded,
		AnalyzerCommand: DefaultAnalyzerCommand,
		Policy:          usecases.DefaultPolicyConfig(),
		LogLevel:        DefaultLogLevel,
		LogAppName:      DefaultLogAppName,
		ClickHouse:      ClickHouse{Database: DefaultClickHouseDB},
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	token, err := loadGitToken(ctx, vaultClientFactory)
	if err != nil {
		return nil, err
	}
	cfg.GitToken = token

	return cfg, nil
}

// applyFile overlays the non-empty settings of the YAML file at path.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}

	if fc.DataDir != "" {
		c.DataDir = fc.DataDir
	}
	if len(fc.Extensions) > 0 {
		exts, err := normalizeExtensions(EnvConfigFile+":extensions", fc.Extensions)
		if err != nil {
			return err
		}
		c.Extensions = exts
	}
	if fc.Order != "" {
		if c.NewestFirst, err = parseOrder(EnvConfigFile+":order", fc.Order); err != nil {
			return err
		}
	}
	if fc.Resume != "" {
		if c.Resume, err = parseResume(EnvConfigFile+":resume", fc.Resume); err != nil {
			return err
		}
	}
	if fc.AnalyzerCommand != "" {
		c.AnalyzerCommand = fc.AnalyzerCommand
	}
	c.Policy = overlayPolicy(c.Policy, fc.Policy)
	return nil
}

// applyEnv overlays the environment variables that are set.
func (c *Config) applyEnv() error {
	var err error

	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvSourceExtensions); v != "" {
		if c.Extensions, err = normalizeExtensions(EnvSourceExtensions, strings.Split(v, ",")); err != nil {
			return err
		}
	}
	if v := os.Getenv(EnvOrder); v != "" {
		if c.NewestFirst, err = parseOrder(EnvOrder, v); err != nil {
			return err
		}
	}
	if v := os.Getenv(EnvResume); v != "" {
		if c.Resume, err = parseResume(EnvResume, v); err != nil {
			return err
		}
	}
	if v := os.Getenv(EnvAnalyzerCommand); v != "" {
		c.AnalyzerCommand = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvLogAppName); v != "" {
		c.LogAppName = v
	}

	c.ClickHouse.Addr = os.Getenv(EnvClickHouseAddr)
	if v := os.Getenv(EnvClickHouseDatabase); v != "" {
		c.ClickHouse.Database = v
	}
	c.ClickHouse.Username = os.Getenv(EnvClickHouseUsername)
	c.ClickHouse.Password = os.Getenv(EnvClickHousePassword)
	return nil
}

// overlayPolicy replaces the fields of base that are set in override.
func overlayPolicy(base, override usecases.PolicyConfig) usecases.PolicyConfig {
	if override.WindowCapacity > 0 {
		base.WindowCapacity = override.WindowCapacity
	}
	if override.MaxWindowErrors > 0 {
		base.MaxWindowErrors = override.MaxWindowErrors
	}
	if override.MaxCommitLatency > 0 {
		base.MaxCommitLatency = override.MaxCommitLatency
	}
	if override.TailLatency > 0 {
		base.TailLatency = override.TailLatency
	}
	if override.TailThreshold > 0 {
		base.TailThreshold = override.TailThreshold
	}
	return base
}

// normalizeExtensions lowercases, trims and dot-prefixes each extension.
func normalizeExtensions(key string, raw []string) ([]string, error) {
	exts := make([]string, 0, len(raw))
	for _, e := range raw {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	if len(exts) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidConfig, key)
	}
	return exts, nil
}

func parseOrder(key, v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case OrderOldestFirst:
		return false, nil
	case OrderNewestFirst:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s=%q (want %s or %s)", ErrInvalidConfig, key, v, OrderOldestFirst, OrderNewestFirst)
	}
}

func parseResume(key, v string) (usecases.ResumeMode, error) {
	switch mode := usecases.ResumeMode(strings.ToLower(strings.TrimSpace(v))); mode {
	case usecases.ResumeBounded, usecases.ResumeFull:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %s=%q (want %s or %s)",
			ErrInvalidConfig, key, v, usecases.ResumeBounded, usecases.ResumeFull)
	}
}

// loadGitToken reads the clone token from Vault when configured, else from GIT_TOKEN.
func loadGitToken(ctx context.Context, vaultClientFactory VaultClientFactory) (string, error) {
	path := os.Getenv(EnvVaultGitTokenPath)
	if path == "" {
		return os.Getenv(EnvGitToken), nil
	}

	if vaultClientFactory == nil {
		vaultClientFactory = DefaultVaultClientFactory
	}

	client, err := vaultClientFactory(ctx)
	if err != nil {
		return "", err
	}

	mount := os.Getenv(EnvVaultGitTokenMount)
	if mount == "" {
		mount = DefaultVaultMount
	}

	secretPath, key := parseVaultPath(path)
	secret, err := client.GetKVSecret(ctx, secretPath, mount)
	if err != nil {
		return "", fmt.Errorf("%w at path %s: %w", ErrVaultSecretNotFound, secretPath, err)
	}

	token, ok := secret[key].(string)
	if !ok || token == "" {
		return "", fmt.Errorf("%w: key %q missing at path %s", ErrVaultSecretNotFound, key, secretPath)
	}
	return token, nil
}

// parseVaultPath splits "path#key" into the secret path and key.
func parseVaultPath(full string) (path, key string) {
	if i := strings.LastIndex(full, "#"); i >= 0 && i < len(full)-1 {
		return full[:i], full[i+1:]
	}
	return strings.TrimSuffix(full, "#"), DefaultVaultTokenKey
}
