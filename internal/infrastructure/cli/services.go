package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/edimap/internal/infrastructure/config"
	"github.com/felixgeelhaar/edimap/internal/infrastructure/logging"
	"github.com/felixgeelhaar/edimap/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/edimap/pkg/storage"
)

// loadServices builds the app services for root. Interactive commands pass
// console=false so log lines never reach the terminal they draw on. The
// returned close func flushes the log file.
func loadServices(root string, console bool) (*wiring.AppServices, func(), error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, nil, MapError(fmt.Errorf("load config: %w", err))
	}
	level := cfg.Level()
	if logLevel != "" {
		if level, err = config.ParseLevel(logLevel); err != nil {
			return nil, nil, NewCLIError("invalid --log-level", "Use debug, info, warn or error", err)
		}
	}

	logger, err := logging.New(logging.Options{
		File:    storage.NewFilesystemRepository(root).LogPath(),
		Level:   level,
		Console: console && verbose,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}

	services, err := wiring.BuildAppServicesWithConfig(root, cfg, logger.Logger)
	if err != nil {
		_ = logger.Close()
		return nil, nil, fmt.Errorf("failed to build services: %w", err)
	}
	return services, func() {
		services.Flush()
		_ = logger.Close()
	}, nil
}

func getProjectRoot() (string, error) {
	if projectPath != "" {
		abs, err := filepath.Abs(projectPath)
		if err != nil {
			return "", fmt.Errorf("invalid project path %q: %w", projectPath, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", fmt.Errorf("project path %q: %w", abs, err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("project path %q is not a directory", abs)
		}
		return abs, nil
	}
	return os.Getwd()
}

func loadServicesForCurrentDir(console bool) (*wiring.AppServices, func(), error) {
	root, err := getProjectRoot()
	if err != nil {
		return nil, nil, err
	}
	return loadServices(root, console)
}
