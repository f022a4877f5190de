package main

import (
	"fmt"
	"os"

	"github.com/zulandar/switchboard/internal/archive"
	"github.com/zulandar/switchboard/internal/bus"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/store"
	"github.com/zulandar/switchboard/internal/tmux"
)

const defaultConfigPath = "switchboard.yaml"

// controllerForCLI returns the tmux controller to use. Allows test override.
var controllerForCLI func() tmux.Controller = func() tmux.Controller {
	return tmux.DefaultController
}

// loadConfig reads the config file, falling back to defaults when the
// default path does not exist. An explicitly named file must exist.
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

// busFromConfig builds the bus from a config file, wiring in the archive
// when one is configured.
func busFromConfig(configPath string) (*bus.Bus, *config.Config, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.New(cfg.RegistryDir)
	if err != nil {
		return nil, nil, err
	}

	var archiver bus.Archiver
	if cfg.Archive.Path != "" {
		arc, err := archive.Open(cfg.Archive.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open archive: %w", err)
		}
		archiver = arc
	}

	return bus.New(st, archiver), cfg, nil
}

// archiveFromConfig opens the configured archive database.
func archiveFromConfig(configPath string) (*archive.Archive, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Archive.Path == "" {
		return nil, fmt.Errorf("no archive configured in %s (add archive.path)", configPath)
	}
	return archive.Open(cfg.Archive.Path)
}
