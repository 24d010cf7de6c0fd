package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecute(t *testing.T) {
	// Execute calls os.Exit on error, so only its presence is checked here.
	assert.NotNil(t, Execute)
}

func TestVersionVariables(t *testing.T) {
	assert.NotEmpty(t, Version, "Version should not be empty")
	assert.NotEmpty(t, Commit, "Commit should not be empty")
}

func TestCLIFlagsVariables(t *testing.T) {
	// cfgFile defaults to yoloctl.yaml via init()
	assert.Equal(t, "yoloctl.yaml", cfgFile, "cfgFile should default to yoloctl.yaml")
	assert.Equal(t, "", datasetPath)
	assert.Equal(t, "", logLevel)
	assert.Equal(t, "", logFormat)

	assert.False(t, noBackup)
	assert.False(t, force)
}

func TestCLIOverrideStruct(t *testing.T) {
	overrides := CLIOverrides{
		LogLevel:  "debug",
		LogFormat: "json",
		NoBackup:  true,
		Force:     true,
		Dataset:   "/data/coco",
	}

	assert.Equal(t, "debug", overrides.LogLevel)
	assert.Equal(t, "json", overrides.LogFormat)
	assert.True(t, overrides.NoBackup)
	assert.True(t, overrides.Force)
	assert.Equal(t, "/data/coco", overrides.Dataset)
}
