// Package config loads numstore's runtime configuration and reports the
// compile-time layout constants spec.md §6 calls "a compile-time header":
// PAGE_SIZE, DL_CAPACITY, IN_MAX_KEYS, HL_DATA, NBUCKETS, MEMORY_PAGE_LEN.
// The first four are genuinely compiled in (internal/page constants); the
// last two are the pager's only runtime knobs and are what this package's
// file/flag precedence chain actually overrides, the same way
// calvinalkan-agent-task/config.go layers a JSONC file over defaults.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"

	"github.com/intellect4all/numstore/internal/pager"
	"github.com/intellect4all/numstore/internal/page"
	"github.com/intellect4all/numstore/internal/storeerr"
)

// FileName is the project-local config file name, read from the database
// directory passed to `numstore db create`/`numstore db repl`.
const FileName = ".numstore.json"

// Config holds the runtime-overridable options.
type Config struct {
	NBuckets      int `json:"nbuckets,omitempty"`
	MemoryPageLen int `json:"memory_page_len,omitempty"`
}

// Sources records which config files Load actually read (empty when a
// file was absent).
type Sources struct {
	Global  string
	Project string
}

// Default returns the built-in defaults, mirroring pager.DefaultConfig.
func Default() Config {
	d := pager.DefaultConfig()
	return Config{NBuckets: d.NBuckets, MemoryPageLen: d.MemoryPageLen}
}

// getGlobalConfigPath returns $XDG_CONFIG_HOME/numstore/config.json, or
// ~/.config/numstore/config.json if XDG_CONFIG_HOME is unset. Returns ""
// if the home directory cannot be determined.
func getGlobalConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "numstore", "config.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "numstore", "config.json")
}

// Load builds a Config with the precedence chain from SPEC_FULL.md §1
// (highest wins): built-in defaults -> global config -> project config
// (dbDir/.numstore.json) -> cliOverride (non-zero fields win).
func Load(dbDir string, cliOverride Config) (Config, Sources, error) {
	cfg := Default()
	var sources Sources

	if globalPath := getGlobalConfigPath(); globalPath != "" {
		globalCfg, loaded, err := loadFile(globalPath, false)
		if err != nil {
			return Config{}, Sources{}, err
		}
		if loaded {
			sources.Global = globalPath
			cfg = merge(cfg, globalCfg)
		}
	}

	projectPath := filepath.Join(dbDir, FileName)
	projectCfg, loaded, err := loadFile(projectPath, false)
	if err != nil {
		return Config{}, Sources{}, err
	}
	if loaded {
		sources.Project = projectPath
		cfg = merge(cfg, projectCfg)
	}

	cfg = merge(cfg, cliOverride)

	if err := validate(cfg); err != nil {
		return Config{}, Sources{}, err
	}
	return cfg, sources, nil
}

// loadFile reads and JSONC-parses a config file. A missing file is not an
// error (loaded=false); a present-but-malformed file is storeerr.Syntax.
func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is built from caller-controlled dirs
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !mustExist {
			return Config{}, false, nil
		}
		return Config{}, false, fmt.Errorf("%w: reading %s: %v", storeerr.IO, path, err)
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w: %s: invalid JSONC: %v", storeerr.Syntax, path, err)
	}
	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("%w: %s: invalid JSON: %v", storeerr.Syntax, path, err)
	}
	return cfg, true, nil
}

func merge(base, overlay Config) Config {
	if overlay.NBuckets != 0 {
		base.NBuckets = overlay.NBuckets
	}
	if overlay.MemoryPageLen != 0 {
		base.MemoryPageLen = overlay.MemoryPageLen
	}
	return base
}

func validate(cfg Config) error {
	if cfg.NBuckets <= 0 {
		return fmt.Errorf("%w: nbuckets must be positive, got %d", storeerr.InvalidArgument, cfg.NBuckets)
	}
	if cfg.MemoryPageLen <= 0 {
		return fmt.Errorf("%w: memory_page_len must be positive, got %d", storeerr.InvalidArgument, cfg.MemoryPageLen)
	}
	return nil
}

// PagerConfig adapts Config to the pager's own option struct.
func (c Config) PagerConfig() pager.Config {
	return pager.Config{MemoryPageLen: c.MemoryPageLen, NBuckets: c.NBuckets}
}

// Save pins dbDir's resolved config as its project `.numstore.json`, so
// a database created under one set of global defaults keeps opening
// with the same NBuckets/MemoryPageLen even if the global config file
// changes later — `numstore db create` calls this once, right after
// bootstrap. Written via a temp-file-plus-rename so a crash mid-write
// never leaves a truncated config file behind (the same hazard
// calvinalkan-agent-task's `ticket.go`/`lock.go` use atomic.WriteFile
// against for their own on-disk writes).
func Save(dbDir string, cfg Config) error {
	data, err := Format(cfg)
	if err != nil {
		return err
	}
	path := filepath.Join(dbDir, FileName)
	if err := atomic.WriteFile(path, bytes.NewReader([]byte(data))); err != nil {
		return fmt.Errorf("%w: writing %s: %v", storeerr.IO, path, err)
	}
	return nil
}

// Format renders cfg as indented JSON; Save writes this text as the
// project `.numstore.json`.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}
	return string(data), nil
}

// Layout reports the six fields spec.md §6 names as the "compile-time
// header": the four genuinely-compiled-in page geometry constants plus
// this Config's two runtime knobs.
type Layout struct {
	PageSize      int
	DLCapacity    int
	InMaxKeys     int
	HLData        int
	NBuckets      int
	MemoryPageLen int
}

func (c Config) Layout() Layout {
	return Layout{
		PageSize:      page.Size,
		DLCapacity:    page.DLCapacity,
		InMaxKeys:     page.MaxKeys,
		HLData:        page.HLData,
		NBuckets:      c.NBuckets,
		MemoryPageLen: c.MemoryPageLen,
	}
}
