// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aplane-algo/qrsign/internal/fsutil"
)

// Image formats for rendered matrix codes.
const (
	ImageFormatSVG = "svg"
	ImageFormatPNG = "png"
)

// DataDirEnvVar overrides the default data directory.
const DataDirEnvVar = "QRSIGN_DATA"

// Config holds qrsign configuration settings
type Config struct {
	ImageFormat      string `yaml:"image_format" description:"Matrix code output format (svg or png)" default:"svg"`
	QRBorder         int    `yaml:"qr_border" description:"Quiet-zone modules around each code (svg)" default:"5"`
	PNGSize          int    `yaml:"png_size" description:"Edge length in pixels of png codes" default:"512"`
	BatchParallelism int    `yaml:"batch_parallelism" description:"Maximum concurrent sign operations in a batch" default:"8"`
	WatchDir         string `yaml:"watch_dir" description:"Folder watched for camera frames (relative to data dir)" default:"frames"`
	KeepOwnPair      bool   `yaml:"keep_own_pair" description:"Keep the key pair when a scanned key equals our own public key" default:"false"`
	PersistSession   bool   `yaml:"persist_session" description:"Persist the current key to session.json between runs" default:"true"`
	EncryptSession   bool   `yaml:"encrypt_session" description:"Encrypt session.json with a passphrase" default:"false"`
	LockMemory       bool   `yaml:"lock_memory" description:"Lock process memory so keys never reach swap (linux, needs CAP_IPC_LOCK)" default:"false"`
	Debug            bool   `yaml:"debug" description:"Enable debug logging" default:"false"`

	// PassphraseCommand, when set, supplies the session passphrase instead of a prompt.
	PassphraseCommand []string `yaml:"passphrase_command,omitempty" description:"Command (argv) that prints the session passphrase" default:""`
}

// DefaultConfig returns the default configuration for runtime use.
func DefaultConfig() Config {
	return Config{
		ImageFormat:      ImageFormatSVG,
		QRBorder:         5,
		PNGSize:          512,
		BatchParallelism: 8,
		WatchDir:         "frames",
		PersistSession:   true,
	}
}

// Validate checks value ranges. It never adjusts values silently.
func (c *Config) Validate() error {
	switch c.ImageFormat {
	case ImageFormatSVG, ImageFormatPNG:
	default:
		return fmt.Errorf("invalid image_format '%s' in config (must be svg or png)", c.ImageFormat)
	}
	if c.QRBorder < 0 {
		return fmt.Errorf("qr_border must not be negative, got %d", c.QRBorder)
	}
	if c.PNGSize < 21 {
		return fmt.Errorf("png_size must be at least 21 pixels, got %d", c.PNGSize)
	}
	if c.BatchParallelism < 1 {
		return fmt.Errorf("batch_parallelism must be at least 1, got %d", c.BatchParallelism)
	}
	if c.EncryptSession && !c.PersistSession {
		return fmt.Errorf("encrypt_session requires persist_session")
	}
	return nil
}

// GetDataDir returns the data directory for qrsign.
// Resolution order: -d flag > QRSIGN_DATA env var > ~/.qrsign
func GetDataDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envDir := os.Getenv(DataDirEnvVar); envDir != "" {
		return envDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "" // Can't determine default
	}
	return filepath.Join(home, ".qrsign")
}

// RequireDataDir resolves the data directory or exits if it cannot be determined.
func RequireDataDir(flagValue string) string {
	dir := GetDataDir(flagValue)
	if dir == "" {
		fmt.Fprintln(os.Stderr, "Error: Could not determine data directory")
		fmt.Fprintf(os.Stderr, "Use -d <path> or set %s environment variable\n", DataDirEnvVar)
		os.Exit(1)
	}
	return dir
}

// GetConfigPath returns the path to the config file in the data directory.
// Returns empty string if dataDir is empty.
func GetConfigPath(dataDir string) string {
	if dataDir == "" {
		return ""
	}
	return filepath.Join(dataDir, "config.yaml")
}

// LoadConfig loads configuration from config.yaml in the data directory.
// A missing file yields the defaults. WatchDir is resolved against dataDir.
func LoadConfig(dataDir string) (Config, error) {
	config, err := LoadConfigFromPath(GetConfigPath(dataDir))
	if err != nil {
		return config, err
	}
	config.WatchDir = ResolvePath(config.WatchDir, dataDir)
	if len(config.PassphraseCommand) > 0 {
		config.PassphraseCommand[0] = ResolvePath(config.PassphraseCommand[0], dataDir)
	}
	return config, nil
}

// LoadConfigFromPath loads configuration from the specified path.
// If path is empty or the file doesn't exist, returns default config.
func LoadConfigFromPath(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then overlay config file values
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.ImageFormat = strings.ToLower(config.ImageFormat)

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// SaveConfig writes config.yaml into dataDir.
func SaveConfig(dataDir string, config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(&config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := fsutil.MkdirAll(dataDir); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return fsutil.WritePublic(GetConfigPath(dataDir), data)
}

// ResolvePath expands a leading ~ and resolves relative paths against baseDir.
func ResolvePath(path, baseDir string) string {
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// DisplayConfig prints the current configuration
func DisplayConfig(dataDir string) {
	config, err := LoadConfig(dataDir)
	configPath := GetConfigPath(dataDir)

	fmt.Println("Current Configuration:")
	fmt.Println("=====================")
	fmt.Printf("Data dir:      %s\n", dataDir)
	fmt.Printf("Config file:   %s\n", configPath)
	if err != nil {
		fmt.Printf("Error:         %v\n", err)
		fmt.Println()
		return
	}
	fmt.Printf("Image format:  %s\n", config.ImageFormat)
	fmt.Printf("QR border:     %d\n", config.QRBorder)
	fmt.Printf("PNG size:      %d\n", config.PNGSize)
	fmt.Printf("Parallelism:   %d\n", config.BatchParallelism)
	fmt.Printf("Watch dir:     %s\n", config.WatchDir)
	fmt.Printf("Keep own pair: %v\n", config.KeepOwnPair)
	fmt.Printf("Session:       persist=%v encrypt=%v\n", config.PersistSession, config.EncryptSession)
	fmt.Printf("Lock memory:   %v\n", config.LockMemory)
	if len(config.PassphraseCommand) > 0 {
		fmt.Printf("Passphrase:    %s\n", strings.Join(config.PassphraseCommand, " "))
	}
	fmt.Println()
}
