package main

import (
	"flag"
	"fmt"

	"github.com/go-logr/zapr"
	"github.com/runningman84/zfs-poolset/pkg/config"
	"github.com/runningman84/zfs-poolset/pkg/inspector"
	"go.uber.org/zap"
	"k8s.io/klog/v2"
)

// Version can be set at build time using -ldflags
// Example: go build -ldflags="-X main.Version=1.0.0"
var Version = "dev"

func main() {
	// Initialize klog first
	klog.InitFlags(nil)

	mode := flag.String("mode", "direct", "Operation mode: test, direct, or chroot")
	logLevel := flag.String("log-level", "", "Log level: info or debug (overrides config)")
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	configPath := flag.String("config", "", "Path to a YAML config file")
	envFile := flag.String("env-file", ".env", "Path to a dotenv file, ignored if missing")
	host := flag.String("host", "", "Host to inspect over ssh (overrides config)")
	diffLatest := flag.Bool("diff-latest", false, "Diff the two latest snapshots of every mounted dataset")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("zfs-poolset version %s\n", Version)
		return
	}

	if *mode != "test" && *mode != "direct" && *mode != "chroot" {
		klog.Fatalf("Invalid mode: %s. Must be one of: test, direct, chroot", *mode)
	}

	cfg, err := config.Load(*mode, *configPath, *envFile)
	if err != nil {
		klog.Fatalf("Failed to load config: %v", err)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *diffLatest {
		cfg.DiffLatest = true
	}

	if cfg.LogLevel != "info" && cfg.LogLevel != "debug" {
		klog.Fatalf("Invalid log level: %s. Must be one of: info, debug", cfg.LogLevel)
	}

	if *logFormat != "text" && *logFormat != "json" {
		klog.Fatalf("Invalid log format: %s. Must be one of: text, json", *logFormat)
	}
	if *logFormat == "json" {
		var zapLog *zap.Logger
		if cfg.IsDebug() {
			zapLog, err = zap.NewDevelopment()
		} else {
			zapLog, err = zap.NewProduction()
		}
		if err != nil {
			klog.Fatalf("Failed to initialize JSON logger: %v", err)
		}
		defer zapLog.Sync()

		// Set klog to use zap backend for JSON output
		klog.SetLogger(zapr.NewLogger(zapLog))
	}

	// Command tracing is logged at V(1)
	if cfg.IsDebug() {
		flag.Set("v", "1")
	}

	klog.Infof("Starting zfs-poolset version %s in %s mode with %s log level", Version, cfg.Mode, cfg.LogLevel)

	insp := inspector.NewInspector(cfg)
	if err := insp.Run(); err != nil {
		klog.Fatalf("Inspector failed: %v", err)
	}

	klog.Flush()
}
