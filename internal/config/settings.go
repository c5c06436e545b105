package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds harness configuration loaded from a config file.
// Relative paths are resolved against SharedDir.
type Settings struct {
	// SharedDir is the directory shared with the outer harness. It holds the
	// built artifacts, the signing key, and receives the result record.
	SharedDir string `yaml:"shared_dir"`

	// ArtifactGlob matches the locally built package files to install,
	// relative to SharedDir.
	ArtifactGlob string `yaml:"artifact_glob"`

	// RepoURL is the external package repository to register.
	RepoURL string `yaml:"repo_url"`

	// KeyPath is the signing key to import, relative to SharedDir.
	KeyPath string `yaml:"key_path"`

	// Packages are the runtime dependency packages installed alongside the
	// artifacts.
	Packages []string `yaml:"packages"`

	// Service is the background service started before the self-test.
	Service string `yaml:"service"`

	// Selftest is the argv of the artifact's self-test entry point.
	Selftest []string `yaml:"selftest"`

	// ResultPath is where the final exit status is persisted, relative to
	// SharedDir.
	ResultPath string `yaml:"result_path"`

	// RunDir receives per-run logs, reports, and the run history database.
	RunDir string `yaml:"run_dir"`

	// StageTimeout bounds each stage's child process.
	StageTimeout time.Duration `yaml:"stage_timeout"`
}

// Defaults returns settings for the stock Docker-on-Fedora verification.
func Defaults() *Settings {
	return &Settings{
		SharedDir:    "/vagrant",
		ArtifactGlob: "rpms/*.rpm",
		RepoURL:      "https://download.docker.com/linux/fedora/docker-ce.repo",
		KeyPath:      "docker.gpg",
		Packages:     []string{"docker-ce"},
		Service:      "docker",
		Selftest:     []string{"docker-rpm-builder", "selftest", "--full"},
		ResultPath:   "selftest_exitcode",
		RunDir:       ".rpmverify",
		StageTimeout: 15 * time.Minute,
	}
}

// LoadSettings reads a YAML config file into Settings, applying defaults for
// any field left unset. If the file does not exist, defaults are returned.
func LoadSettings(path string) (*Settings, error) {
	s := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return s, nil
}

// Validate checks that every field the stage plan depends on is present.
func (s *Settings) Validate() error {
	if s.SharedDir == "" {
		return fmt.Errorf("shared_dir is required")
	}
	if s.ArtifactGlob == "" {
		return fmt.Errorf("artifact_glob is required")
	}
	if s.RepoURL == "" {
		return fmt.Errorf("repo_url is required")
	}
	if s.KeyPath == "" {
		return fmt.Errorf("key_path is required")
	}
	if len(s.Packages) == 0 {
		return fmt.Errorf("at least one dependency package is required")
	}
	if len(s.Selftest) == 0 {
		return fmt.Errorf("selftest command is required")
	}
	if s.ResultPath == "" {
		return fmt.Errorf("result_path is required")
	}
	if s.StageTimeout <= 0 {
		return fmt.Errorf("stage_timeout must be positive")
	}
	return nil
}

// Resolve joins a possibly-relative path with SharedDir.
func (s *Settings) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.SharedDir, path)
}

// ResultFile returns the absolute path of the result record.
func (s *Settings) ResultFile() string {
	return s.Resolve(s.ResultPath)
}

// ArtifactPattern returns the absolute glob pattern for built artifacts.
func (s *Settings) ArtifactPattern() string {
	return s.Resolve(s.ArtifactGlob)
}

// KeyFile returns the absolute path of the signing key.
func (s *Settings) KeyFile() string {
	return s.Resolve(s.KeyPath)
}
