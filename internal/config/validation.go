package config

import (
	"fmt"
	"math"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateDataset()...)
	errors = append(errors, c.validateBackup()...)
	errors = append(errors, c.validatePartition()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateDataset() ValidationErrors {
	var errors ValidationErrors

	if len(c.Dataset.ImageExtensions) == 0 {
		errors = append(errors, ValidationError{
			Field:   "dataset.image_extensions",
			Message: "at least one image extension is required",
		})
	}
	for i, ext := range c.Dataset.ImageExtensions {
		if ext == "" || ext == "." {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("dataset.image_extensions[%d]", i),
				Message: "extension cannot be empty",
			})
		}
		if ext == ".txt" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("dataset.image_extensions[%d]", i),
				Message: ".txt is reserved for label files",
			})
		}
	}

	if c.Dataset.IndexCacheSize <= 0 {
		errors = append(errors, ValidationError{
			Field:   "dataset.index_cache_size",
			Message: "index_cache_size must be positive",
		})
	}

	return errors
}

func (c *Config) validateBackup() ValidationErrors {
	var errors ValidationErrors

	if c.Backup.Keep < 0 {
		errors = append(errors, ValidationError{
			Field:   "backup.keep",
			Message: "keep cannot be negative",
		})
	}

	return errors
}

func (c *Config) validatePartition() ValidationErrors {
	var errors ValidationErrors
	p := c.Partition

	for name, r := range map[string]float64{"train": p.Train, "val": p.Val, "test": p.Test} {
		if r < 0 || r > 1 {
			errors = append(errors, ValidationError{
				Field:   "partition." + name,
				Message: "ratio must be between 0 and 1",
			})
		}
	}

	if math.Abs(p.Train+p.Val+p.Test-1) > 1e-6 {
		errors = append(errors, ValidationError{
			Field:   "partition",
			Message: fmt.Sprintf("train+val+test must equal 1 (got %.4f)", p.Train+p.Val+p.Test),
		})
	}

	validFormats := map[string]bool{"format1": true, "format2": true}
	if !validFormats[p.OutputFormat] {
		errors = append(errors, ValidationError{
			Field:   "partition.output_format",
			Message: "output_format must be 'format1' or 'format2'",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}
