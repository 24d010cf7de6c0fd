package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"

	"github.com/dbsmedya/yoloctl/internal/config"
	"github.com/dbsmedya/yoloctl/internal/dataset"
	"github.com/dbsmedya/yoloctl/internal/lock"
	"github.com/dbsmedya/yoloctl/internal/logger"
)

// appFs is the filesystem every command works on. Tests swap in a MemMapFs.
var appFs afero.Fs = afero.NewOsFs()

// session is the state shared by all dataset commands of one invocation.
type session struct {
	cfg *config.Config
	log *logger.Logger
	fs  afero.Fs
	ds  *dataset.Dataset
}

// newSession loads the configuration, applies CLI overrides, builds the
// logger and detects the dataset given with --dataset.
func newSession() (*session, error) {
	configFile := GetConfigFile()

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Apply CLI overrides
	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat, overrides.NoBackup)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize logger
	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if overrides.Dataset == "" {
		return nil, errors.New("dataset path is required (use --dataset)")
	}

	detector := dataset.NewDetector(appFs, dataset.Options{
		ImageExtensions: cfg.Dataset.ImageExtensions,
		IndexCacheSize:  cfg.Dataset.IndexCacheSize,
	}, log)
	root, err := filepath.Abs(overrides.Dataset)
	if err != nil {
		return nil, fmt.Errorf("invalid dataset path: %w", err)
	}
	ds, err := detector.Detect(root)
	if err != nil {
		return nil, fmt.Errorf("failed to detect dataset structure: %w", err)
	}

	log.Debugw("Session ready",
		"config", configFile,
		"dataset", ds.Root,
		"layout", ds.Layout,
	)
	return &session{cfg: cfg, log: log, fs: appFs, ds: ds}, nil
}

// acquireLock takes the dataset lock unless --force is set. The returned
// function releases it.
func (s *session) acquireLock() (func(), error) {
	if GetCLIOverrides().Force {
		s.log.Warnw("Skipping dataset lock acquisition (--force flag used)", "dataset", s.ds.Root)
		return func() {}, nil
	}

	l := lock.New(s.fs, s.ds.Root)
	if err := l.Acquire(); err != nil {
		if errors.Is(err, lock.ErrLockHeld) {
			return nil, fmt.Errorf("%w (use --force to override)", err)
		}
		return nil, fmt.Errorf("failed to acquire dataset lock: %w", err)
	}
	s.log.Infow("Acquired dataset lock", "lock", l.Path())

	return func() {
		if err := l.Release(); err != nil {
			s.log.Warnw("Failed to release dataset lock", "lock", l.Path(), "error", err)
		}
	}, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func (s *session) signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			s.log.Warn("Received shutdown signal - finishing current step...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
