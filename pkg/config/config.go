package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Mode     string // "test", "direct", or "chroot"
	LogLevel string // "info" or "debug"

	// Remote access; localhost runs commands directly
	Host           string
	Trust          bool
	SSHCipher      string
	IdentityFile   string
	KnownHostsFile string

	// Extra properties to load on top of the mandatory ones
	ZFSProps   []string
	ZPoolProps []string
	SkipMounts bool

	// Pool filtering
	PoolWhitelist []string // List of pools to inspect (empty = all pools)

	// Snapshot selection
	SnapshotName  string // glob, empty = all snapshots
	SnapshotDelta string // compact duration such as "7d", empty = no date window

	DiffLatest   bool // diff the two most recent snapshots of every mounted dataset
	MaxDiffLines int  // individual changes logged per dataset

	TestDataDir string // fixture directory used in test mode

	// Commands
	ZFSCmd   []string
	ZPoolCmd []string
}

// fileConfig mirrors Config for YAML files; unset keys keep their defaults
type fileConfig struct {
	LogLevel       *string  `yaml:"log_level"`
	Host           *string  `yaml:"host"`
	Trust          *bool    `yaml:"trust"`
	SSHCipher      *string  `yaml:"ssh_cipher"`
	IdentityFile   *string  `yaml:"identity_file"`
	KnownHostsFile *string  `yaml:"known_hosts_file"`
	ZFSProps       []string `yaml:"zfs_props"`
	ZPoolProps     []string `yaml:"zpool_props"`
	SkipMounts     *bool    `yaml:"skip_mounts"`
	PoolWhitelist  []string `yaml:"pool_whitelist"`
	SnapshotName   *string  `yaml:"snapshot_name"`
	SnapshotDelta  *string  `yaml:"snapshot_delta"`
	DiffLatest     *bool    `yaml:"diff_latest"`
	MaxDiffLines   *int     `yaml:"max_diff_lines"`
	TestDataDir    *string  `yaml:"test_data_dir"`
}

// NewConfig creates a new configuration with default values overridden by the environment
func NewConfig(mode string) *Config {
	cfg := defaults(mode)
	cfg.applyEnv()
	return cfg
}

// Load builds the configuration from defaults, the optional YAML file at path
// and the environment, in that order of precedence. Variables from envFile are
// added to the environment first without overriding ones already set.
func Load(mode, path, envFile string) (*Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	cfg := defaults(mode)
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	return cfg, nil
}

func defaults(mode string) *Config {
	cfg := &Config{
		Mode:         mode,
		LogLevel:     "info",
		Host:         "localhost",
		ZFSProps:     []string{"used", "available", "referenced"},
		ZPoolProps:   []string{},
		MaxDiffLines: 20,
		TestDataDir:  "test",
	}

	switch mode {
	case "chroot":
		cfg.ZFSCmd = []string{"chroot", "/host", "/usr/local/sbin/zfs"}
		cfg.ZPoolCmd = []string{"chroot", "/host", "/usr/local/sbin/zpool"}
	default:
		// test mode serves fixtures for the plain command names
		cfg.ZFSCmd = []string{"zfs"}
		cfg.ZPoolCmd = []string{"zpool"}
	}

	return cfg
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setIf(&c.LogLevel, fc.LogLevel)
	setIf(&c.Host, fc.Host)
	setIf(&c.Trust, fc.Trust)
	setIf(&c.SSHCipher, fc.SSHCipher)
	setIf(&c.IdentityFile, fc.IdentityFile)
	setIf(&c.KnownHostsFile, fc.KnownHostsFile)
	setIf(&c.SkipMounts, fc.SkipMounts)
	setIf(&c.SnapshotName, fc.SnapshotName)
	setIf(&c.SnapshotDelta, fc.SnapshotDelta)
	setIf(&c.DiffLatest, fc.DiffLatest)
	setIf(&c.MaxDiffLines, fc.MaxDiffLines)
	setIf(&c.TestDataDir, fc.TestDataDir)
	if fc.ZFSProps != nil {
		c.ZFSProps = fc.ZFSProps
	}
	if fc.ZPoolProps != nil {
		c.ZPoolProps = fc.ZPoolProps
	}
	if fc.PoolWhitelist != nil {
		c.PoolWhitelist = fc.PoolWhitelist
	}

	return nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Host = getEnv("ZFS_HOST", c.Host)
	c.Trust = getEnvAsBool("ZFS_TRUST", c.Trust)
	c.SSHCipher = getEnv("ZFS_SSH_CIPHER", c.SSHCipher)
	c.IdentityFile = getEnv("ZFS_IDENTITY_FILE", c.IdentityFile)
	c.KnownHostsFile = getEnv("ZFS_KNOWN_HOSTS_FILE", c.KnownHostsFile)
	c.ZFSProps = getEnvAsStringSlice("ZFS_PROPS", c.ZFSProps)
	c.ZPoolProps = getEnvAsStringSlice("ZPOOL_PROPS", c.ZPoolProps)
	c.SkipMounts = getEnvAsBool("SKIP_MOUNTS", c.SkipMounts)
	c.PoolWhitelist = getEnvAsStringSlice("POOL_WHITELIST", c.PoolWhitelist)
	c.SnapshotName = getEnv("SNAPSHOT_NAME", c.SnapshotName)
	c.SnapshotDelta = getEnv("SNAPSHOT_DELTA", c.SnapshotDelta)
	c.DiffLatest = getEnvAsBool("DIFF_LATEST", c.DiffLatest)
	c.MaxDiffLines = getEnvAsInt("MAX_DIFF_LINES", c.MaxDiffLines)
	c.TestDataDir = getEnv("TEST_DATA_DIR", c.TestDataDir)
}

// IsDebug returns true if log level is debug
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// getEnv reads an environment variable or returns the default value if not set
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable and returns it as an integer,
// or returns the default value if not set or invalid
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBool reads an environment variable as a boolean (1, true, yes, ...),
// or returns the default value if not set or invalid
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch valueStr {
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsStringSlice reads an environment variable as a comma-separated list,
// or returns the default value if not set
func getEnvAsStringSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}

// IsPoolAllowed checks if a pool is in the whitelist (or if whitelist is empty, all pools are allowed)
func (c *Config) IsPoolAllowed(poolName string) bool {
	if len(c.PoolWhitelist) == 0 {
		return true
	}
	return slices.Contains(c.PoolWhitelist, poolName)
}
