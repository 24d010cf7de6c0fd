package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetConfigFile(t *testing.T) {
	originalCfgFile := cfgFile
	defer func() {
		cfgFile = originalCfgFile
	}()

	tests := []struct {
		name     string
		cfgValue string
		want     string
	}{
		{
			name:     "empty config file",
			cfgValue: "",
			want:     "",
		},
		{
			name:     "custom config file",
			cfgValue: "/path/to/custom.yaml",
			want:     "/path/to/custom.yaml",
		},
		{
			name:     "config file with spaces",
			cfgValue: "/path/to/my config.yaml",
			want:     "/path/to/my config.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgFile = tt.cfgValue
			assert.Equal(t, tt.want, GetConfigFile())
		})
	}
}

func TestGetCLIOverrides(t *testing.T) {
	originalLogLevel := logLevel
	originalLogFormat := logFormat
	originalNoBackup := noBackup
	originalForce := force
	originalDataset := datasetPath
	defer func() {
		logLevel = originalLogLevel
		logFormat = originalLogFormat
		noBackup = originalNoBackup
		force = originalForce
		datasetPath = originalDataset
	}()

	tests := []struct {
		name      string
		logLevel  string
		logFormat string
		noBackup  bool
		force     bool
		dataset   string
		want      CLIOverrides
	}{
		{
			name: "empty overrides",
			want: CLIOverrides{},
		},
		{
			name:      "all overrides set",
			logLevel:  "debug",
			logFormat: "json",
			noBackup:  true,
			force:     true,
			dataset:   "./ds",
			want: CLIOverrides{
				LogLevel:  "debug",
				LogFormat: "json",
				NoBackup:  true,
				Force:     true,
				Dataset:   "./ds",
			},
		},
		{
			name:     "partial overrides",
			logLevel: "warn",
			dataset:  "/data/yolo",
			want: CLIOverrides{
				LogLevel: "warn",
				Dataset:  "/data/yolo",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logLevel = tt.logLevel
			logFormat = tt.logFormat
			noBackup = tt.noBackup
			force = tt.force
			datasetPath = tt.dataset

			assert.Equal(t, tt.want, GetCLIOverrides())
		})
	}
}

func TestRootCommandPersistentFlags(t *testing.T) {
	flags := rootCmd.PersistentFlags()

	tests := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{"config", "c", "yoloctl.yaml"},
		{"dataset", "d", ""},
		{"log-level", "", ""},
		{"log-format", "", ""},
		{"no-backup", "", "false"},
		{"force", "", "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := flags.Lookup(tt.name)
			if assert.NotNil(t, f) {
				assert.Equal(t, tt.shorthand, f.Shorthand)
				assert.Equal(t, tt.defValue, f.DefValue)
			}
		})
	}
}

func TestCommandsAreAddedToRoot(t *testing.T) {
	want := []string{"info", "delete", "reindex", "rename", "clean", "split", "backup", "validate", "version"}

	registered := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, registered[name], "%s command should be added to root command", name)
	}
}

func TestBackupSubcommands(t *testing.T) {
	registered := map[string]bool{}
	for _, c := range backupCmd.Commands() {
		registered[c.Name()] = true
	}
	assert.True(t, registered["list"])
	assert.True(t, registered["prune"])
	assert.True(t, registered["restore"])
}
