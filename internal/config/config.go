// Package config provides configuration structures and loading for yoloctl.
package config

// DefaultConfigFile is the config path used when --config is not given.
const DefaultConfigFile = "yoloctl.yaml"

// Config represents the complete application configuration.
type Config struct {
	Dataset   DatasetConfig   `yaml:"dataset" mapstructure:"dataset"`
	Backup    BackupConfig    `yaml:"backup" mapstructure:"backup"`
	Mutation  MutationConfig  `yaml:"mutation" mapstructure:"mutation"`
	Partition PartitionConfig `yaml:"partition" mapstructure:"partition"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// DatasetConfig controls how dataset trees are scanned.
type DatasetConfig struct {
	ImageExtensions []string `yaml:"image_extensions" mapstructure:"image_extensions"`
	IndexCacheSize  int      `yaml:"index_cache_size" mapstructure:"index_cache_size"` // directories kept in the paired-image index
}

// BackupConfig controls label snapshots taken before mutations.
type BackupConfig struct {
	Enabled   bool `yaml:"enabled" mapstructure:"enabled"`
	Keep      int  `yaml:"keep" mapstructure:"keep"`             // backups retained by prune
	AutoPrune bool `yaml:"auto_prune" mapstructure:"auto_prune"` // prune after every successful mutation
}

// MutationConfig controls delete/reindex/clean/rename behavior.
type MutationConfig struct {
	Verify bool `yaml:"verify" mapstructure:"verify"` // run the verifier after writes
}

// PartitionConfig holds the default split ratios and output shape.
type PartitionConfig struct {
	Train        float64 `yaml:"train" mapstructure:"train"`
	Val          float64 `yaml:"val" mapstructure:"val"`
	Test         float64 `yaml:"test" mapstructure:"test"`
	Seed         int64   `yaml:"seed" mapstructure:"seed"`
	OutputFormat string  `yaml:"output_format" mapstructure:"output_format"` // format1 or format2
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultImageExtensions lists the image suffixes recognized when pairing labels with images.
var DefaultImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".tif", ".webp"}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	exts := make([]string, len(DefaultImageExtensions))
	copy(exts, DefaultImageExtensions)

	return &Config{
		Dataset: DatasetConfig{
			ImageExtensions: exts,
			IndexCacheSize:  256,
		},
		Backup: BackupConfig{
			Enabled:   true,
			Keep:      5,
			AutoPrune: false,
		},
		Mutation: MutationConfig{
			Verify: true,
		},
		Partition: PartitionConfig{
			Train:        0.8,
			Val:          0.1,
			Test:         0.1,
			Seed:         42,
			OutputFormat: "format1",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}
