// Package config loads qcompat settings from defaults, an optional YAML
// file and QCOMPAT_* environment variables, in increasing precedence.
// Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/roach88/qcompat/internal/runner"
	"github.com/roach88/qcompat/internal/version"
)

// EnvPrefix prefixes environment overrides, e.g. QCOMPAT_PAIR_TIMEOUT=30s.
const EnvPrefix = "QCOMPAT"

// Config holds every setting of a run.
type Config struct {
	SDKRepoPath                     string            `mapstructure:"sdk_repo_path" json:"sdk_repo_path"`
	ProducerVersions                []string          `mapstructure:"producer_versions" json:"producer_versions"`
	ConsumerVersions                []string          `mapstructure:"consumer_versions" json:"consumer_versions"`
	UntaggedConsumerVersionBranches map[string]string `mapstructure:"untagged_consumer_version_branches" json:"untagged_consumer_version_branches"`
	BreakingBoundaries              []string          `mapstructure:"breaking_boundaries" json:"breaking_boundaries"`
	InstallCommand                  []string          `mapstructure:"install_command" json:"install_command"`
	EnvPathCommand                  []string          `mapstructure:"env_path_command" json:"env_path_command"`
	PairTimeout                     time.Duration     `mapstructure:"pair_timeout" json:"pair_timeout"`
	QuestionsFile                   string            `mapstructure:"questions_file" json:"questions_file"`
	ResultsFile                     string            `mapstructure:"results_file" json:"results_file"`
	HistoryDB                       string            `mapstructure:"history_db" json:"history_db"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		SDKRepoPath:                     ".",
		ProducerVersions:                append([]string(nil), version.Defaults...),
		ConsumerVersions:                append([]string(nil), version.Defaults...),
		UntaggedConsumerVersionBranches: map[string]string{},
		BreakingBoundaries:              version.DefaultBoundaries(),
		InstallCommand:                  append([]string(nil), runner.DefaultInstallCommand...),
		EnvPathCommand:                  append([]string(nil), runner.DefaultEnvPathCommand...),
		PairTimeout:                     10 * time.Minute,
		QuestionsFile:                   "recorded_questions.jsonl",
		ResultsFile:                     "version_compatibility_results.json",
		HistoryDB:                       "qcompat_history.db",
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped
// when path is empty) and then the environment.
func Load(path string) (*Config, error) {
	// Branch override keys are versions, so "." cannot be the key delimiter.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.UntaggedConsumerVersionBranches == nil {
		cfg.UntaggedConsumerVersionBranches = map[string]string{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("sdk_repo_path", d.SDKRepoPath)
	v.SetDefault("producer_versions", d.ProducerVersions)
	v.SetDefault("consumer_versions", d.ConsumerVersions)
	v.SetDefault("breaking_boundaries", d.BreakingBoundaries)
	v.SetDefault("install_command", d.InstallCommand)
	v.SetDefault("env_path_command", d.EnvPathCommand)
	v.SetDefault("pair_timeout", d.PairTimeout)
	v.SetDefault("questions_file", d.QuestionsFile)
	v.SetDefault("results_file", d.ResultsFile)
	v.SetDefault("history_db", d.HistoryDB)
}

// Validate checks versions and boundaries parse and the timeout is not
// negative.
func (c *Config) Validate() error {
	var errs []error
	for _, v := range c.ProducerVersions {
		if !version.IsValid(v) {
			errs = append(errs, fmt.Errorf("producer_versions: %w: %q", version.ErrInvalidVersion, v))
		}
	}
	for _, v := range c.ConsumerVersions {
		if !version.IsValid(v) {
			errs = append(errs, fmt.Errorf("consumer_versions: %w: %q", version.ErrInvalidVersion, v))
		}
	}
	if err := version.Boundaries(c.BreakingBoundaries).Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(c.InstallCommand) == 0 {
		errs = append(errs, errors.New("install_command: empty"))
	}
	if c.PairTimeout < 0 {
		errs = append(errs, fmt.Errorf("pair_timeout: negative duration %s", c.PairTimeout))
	}
	return errors.Join(errs...)
}

// document is the YAML shape of a Config. Durations are written in
// time.ParseDuration form, which viper reads back.
type document struct {
	SDKRepoPath                     string            `yaml:"sdk_repo_path"`
	ProducerVersions                []string          `yaml:"producer_versions,flow"`
	ConsumerVersions                []string          `yaml:"consumer_versions,flow"`
	UntaggedConsumerVersionBranches map[string]string `yaml:"untagged_consumer_version_branches"`
	BreakingBoundaries              []string          `yaml:"breaking_boundaries,flow"`
	InstallCommand                  []string          `yaml:"install_command,flow"`
	EnvPathCommand                  []string          `yaml:"env_path_command,flow"`
	PairTimeout                     string            `yaml:"pair_timeout"`
	QuestionsFile                   string            `yaml:"questions_file"`
	ResultsFile                     string            `yaml:"results_file"`
	HistoryDB                       string            `yaml:"history_db"`
}

// Render returns c as YAML.
func (c *Config) Render() ([]byte, error) {
	doc := document{
		SDKRepoPath:                     c.SDKRepoPath,
		ProducerVersions:                c.ProducerVersions,
		ConsumerVersions:                c.ConsumerVersions,
		UntaggedConsumerVersionBranches: c.UntaggedConsumerVersionBranches,
		BreakingBoundaries:              c.BreakingBoundaries,
		InstallCommand:                  c.InstallCommand,
		EnvPathCommand:                  c.EnvPathCommand,
		PairTimeout:                     c.PairTimeout.String(),
		QuestionsFile:                   c.QuestionsFile,
		ResultsFile:                     c.ResultsFile,
		HistoryDB:                       c.HistoryDB,
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	return out, nil
}

// WriteDefault writes the default configuration to path. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	body, err := DefaultConfig().Render()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if _, err := f.Write(append([]byte("# qcompat configuration\n"), body...)); err != nil {
		_ = f.Close()
		return fmt.Errorf("write config: %w", err)
	}
	return f.Close()
}
