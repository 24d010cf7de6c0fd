package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/yoloctl/internal/config"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile     string
	datasetPath string
	logLevel    string
	logFormat   string
	noBackup    bool
	force       bool
)

var rootCmd = &cobra.Command{
	Use:   "yoloctl",
	Short: "YOLO dataset category maintenance tool",
	Long: `A CLI tool for maintaining YOLO object-detection datasets: inspect the
category distribution, delete, reindex, rename or clean categories, and split
a dataset into train/val/test while keeping every category represented.

Features:
  - Layout detection (format1, format2, standard, mixed)
  - Category roster handling for classes.txt, data.yaml and dataset.yaml
  - Timestamped label backups before every write
  - Category-stratified, seeded train/val/test splitting
  - Post-mutation consistency verification`,
	Version:      Version,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultConfigFile,
		"Path to configuration file")

	// Dataset root
	rootCmd.PersistentFlags().StringVarP(&datasetPath, "dataset", "d", "",
		"Path to the dataset root directory")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Safety overrides
	rootCmd.PersistentFlags().BoolVar(&noBackup, "no-backup", false,
		"Skip the label backup before writing")
	rootCmd.PersistentFlags().BoolVar(&force, "force", false,
		"Run even if the dataset lock is held (use with caution)")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel  string
	LogFormat string
	NoBackup  bool
	Force     bool
	Dataset   string
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:  logLevel,
		LogFormat: logFormat,
		NoBackup:  noBackup,
		Force:     force,
		Dataset:   datasetPath,
	}
}
