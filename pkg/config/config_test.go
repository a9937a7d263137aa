package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestNewConfig(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		wantZFS  []string
		wantPool []string
	}{
		{
			name:     "test mode",
			mode:     "test",
			wantZFS:  []string{"zfs"},
			wantPool: []string{"zpool"},
		},
		{
			name:     "direct mode",
			mode:     "direct",
			wantZFS:  []string{"zfs"},
			wantPool: []string{"zpool"},
		},
		{
			name:     "chroot mode",
			mode:     "chroot",
			wantZFS:  []string{"chroot", "/host", "/usr/local/sbin/zfs"},
			wantPool: []string{"chroot", "/host", "/usr/local/sbin/zpool"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig(tt.mode)

			if cfg.Mode != tt.mode {
				t.Errorf("Mode = %v, want %v", cfg.Mode, tt.mode)
			}
			if cfg.LogLevel != "info" {
				t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
			}
			if cfg.Host != "localhost" {
				t.Errorf("Host = %v, want localhost", cfg.Host)
			}
			if cfg.MaxDiffLines != 20 {
				t.Errorf("MaxDiffLines = %d, want 20", cfg.MaxDiffLines)
			}
			if !slices.Equal(cfg.ZFSCmd, tt.wantZFS) {
				t.Errorf("ZFSCmd = %v, want %v", cfg.ZFSCmd, tt.wantZFS)
			}
			if !slices.Equal(cfg.ZPoolCmd, tt.wantPool) {
				t.Errorf("ZPoolCmd = %v, want %v", cfg.ZPoolCmd, tt.wantPool)
			}
		})
	}
}

func TestIsDebug(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     bool
	}{
		{
			name:     "debug mode",
			logLevel: "debug",
			want:     true,
		},
		{
			name:     "info mode",
			logLevel: "info",
			want:     false,
		},
		{
			name:     "empty log level",
			logLevel: "",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("test")
			cfg.LogLevel = tt.logLevel
			if got := cfg.IsDebug(); got != tt.want {
				t.Errorf("IsDebug() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewConfigWithEnvironmentVariables(t *testing.T) {
	t.Setenv("ZFS_HOST", "backup.example.com")
	t.Setenv("ZFS_TRUST", "yes")
	t.Setenv("ZFS_PROPS", "used,compressratio")
	t.Setenv("SKIP_MOUNTS", "true")
	t.Setenv("SNAPSHOT_NAME", "autosnap*")
	t.Setenv("SNAPSHOT_DELTA", "7d")
	t.Setenv("MAX_DIFF_LINES", "5")

	cfg := NewConfig("direct")

	if cfg.Host != "backup.example.com" {
		t.Errorf("Host = %s, want backup.example.com", cfg.Host)
	}
	if !cfg.Trust {
		t.Error("Trust = false, want true")
	}
	if !slices.Equal(cfg.ZFSProps, []string{"used", "compressratio"}) {
		t.Errorf("ZFSProps = %v, want [used compressratio]", cfg.ZFSProps)
	}
	if !cfg.SkipMounts {
		t.Error("SkipMounts = false, want true")
	}
	if cfg.SnapshotName != "autosnap*" {
		t.Errorf("SnapshotName = %s, want autosnap*", cfg.SnapshotName)
	}
	if cfg.SnapshotDelta != "7d" {
		t.Errorf("SnapshotDelta = %s, want 7d", cfg.SnapshotDelta)
	}
	if cfg.MaxDiffLines != 5 {
		t.Errorf("MaxDiffLines = %d, want 5", cfg.MaxDiffLines)
	}
}

func TestLoadFilePrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `host: nas.local
trust: true
pool_whitelist: [tank]
snapshot_name: "daily*"
diff_latest: true
max_diff_lines: 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("SNAPSHOT_NAME", "weekly*")

	cfg, err := Load("direct", path, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Host != "nas.local" {
		t.Errorf("Host = %s, want nas.local", cfg.Host)
	}
	if !cfg.Trust {
		t.Error("Trust = false, want true")
	}
	if !slices.Equal(cfg.PoolWhitelist, []string{"tank"}) {
		t.Errorf("PoolWhitelist = %v, want [tank]", cfg.PoolWhitelist)
	}
	if !cfg.DiffLatest {
		t.Error("DiffLatest = false, want true")
	}
	if cfg.MaxDiffLines != 3 {
		t.Errorf("MaxDiffLines = %d, want 3", cfg.MaxDiffLines)
	}
	// environment wins over the file
	if cfg.SnapshotName != "weekly*" {
		t.Errorf("SnapshotName = %s, want weekly*", cfg.SnapshotName)
	}
	// untouched keys keep defaults
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("host: [unclosed"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	tests := []struct {
		name string
		path string
	}{
		{name: "missing file", path: filepath.Join(dir, "missing.yaml")},
		{name: "invalid yaml", path: bad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load("direct", tt.path, ""); err == nil {
				t.Error("Load() error = nil, want error")
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("ZFS_SSH_CIPHER=aes128-ctr\n"), 0o644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	// godotenv sets the variable for the whole process; register it for cleanup
	t.Setenv("ZFS_SSH_CIPHER", "")
	os.Unsetenv("ZFS_SSH_CIPHER")

	cfg, err := Load("direct", "", envFile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SSHCipher != "aes128-ctr" {
		t.Errorf("SSHCipher = %s, want aes128-ctr", cfg.SSHCipher)
	}

	if _, err := Load("direct", "", filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("Load() with missing env file error = %v, want nil", err)
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue int
		want         int
	}{
		{
			name:         "valid integer",
			envValue:     "42",
			defaultValue: 10,
			want:         42,
		},
		{
			name:         "empty string",
			envValue:     "",
			defaultValue: 10,
			want:         10,
		},
		{
			name:         "invalid integer",
			envValue:     "not-a-number",
			defaultValue: 10,
			want:         10,
		},
		{
			name:         "negative value",
			envValue:     "-5",
			defaultValue: 10,
			want:         -5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// an empty value reads as unset
			t.Setenv("TEST_ENV_INT_KEY", tt.envValue)

			got := getEnvAsInt("TEST_ENV_INT_KEY", tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{name: "true", envValue: "true", defaultValue: false, want: true},
		{name: "one", envValue: "1", defaultValue: false, want: true},
		{name: "yes uppercase", envValue: "YES", defaultValue: false, want: true},
		{name: "off", envValue: "off", defaultValue: true, want: false},
		{name: "false", envValue: "false", defaultValue: true, want: false},
		{name: "empty string", envValue: "", defaultValue: true, want: true},
		{name: "garbage", envValue: "maybe", defaultValue: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_ENV_BOOL_KEY", tt.envValue)

			if got := getEnvAsBool("TEST_ENV_BOOL_KEY", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvAsBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsStringSlice(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue []string
		want         []string
	}{
		{
			name:         "single value",
			envValue:     "tank",
			defaultValue: []string{},
			want:         []string{"tank"},
		},
		{
			name:         "values with spaces",
			envValue:     "tank, backup , storage",
			defaultValue: []string{},
			want:         []string{"tank", "backup", "storage"},
		},
		{
			name:         "empty string",
			envValue:     "",
			defaultValue: []string{"default"},
			want:         []string{"default"},
		},
		{
			name:         "empty values in list",
			envValue:     "tank,,backup",
			defaultValue: []string{},
			want:         []string{"tank", "backup"},
		},
		{
			name:         "only commas",
			envValue:     ",,,",
			defaultValue: []string{"default"},
			want:         []string{"default"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_ENV_STRING_SLICE_KEY", tt.envValue)

			got := getEnvAsStringSlice("TEST_ENV_STRING_SLICE_KEY", tt.defaultValue)
			if !slices.Equal(got, tt.want) {
				t.Errorf("getEnvAsStringSlice() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsPoolAllowed(t *testing.T) {
	tests := []struct {
		name      string
		whitelist []string
		pool      string
		want      bool
	}{
		{
			name:      "empty whitelist allows all",
			whitelist: []string{},
			pool:      "tank",
			want:      true,
		},
		{
			name:      "pool in whitelist",
			whitelist: []string{"tank", "backup"},
			pool:      "backup",
			want:      true,
		},
		{
			name:      "pool not in whitelist",
			whitelist: []string{"tank"},
			pool:      "backup",
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("test")
			cfg.PoolWhitelist = tt.whitelist
			if got := cfg.IsPoolAllowed(tt.pool); got != tt.want {
				t.Errorf("IsPoolAllowed(%q) = %v, want %v", tt.pool, got, tt.want)
			}
		})
	}
}
