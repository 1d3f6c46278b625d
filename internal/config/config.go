// Package config defines the data structures related to configuration and
// includes functions for loading and validating the config.
package config

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/iwvelando/goalseek/internal/model"
	"github.com/iwvelando/goalseek/pkg/constants"
	"github.com/iwvelando/goalseek/pkg/solver"
	"github.com/iwvelando/goalseek/pkg/validation"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Configuration holds all configuration for goalseek.
type Configuration struct {
	Model    ModelConfig   `yaml:"model" mapstructure:"model"`
	Solver   solver.Tuning `yaml:"solver,omitempty" mapstructure:"solver"`
	Problems []Problem     `yaml:"problems" mapstructure:"problems"`
	Journal  JournalConfig `yaml:"journal,omitempty" mapstructure:"journal"`
	Logging  LoggingConfig `yaml:"logging,omitempty" mapstructure:"logging"`
	Output   OutputConfig  `yaml:"output,omitempty" mapstructure:"output"`
}

// ModelConfig locates the workbook evaluated by the solver. Either Path or
// Cells is set; inline cells are never written back to disk.
type ModelConfig struct {
	Path  string       `yaml:"path,omitempty" mapstructure:"path"` // relative paths resolve against the config file
	Cells []model.Cell `yaml:"cells,omitempty" mapstructure:"cells"`
}

// Inline reports whether the workbook is embedded in the configuration.
func (mc ModelConfig) Inline() bool {
	return len(mc.Cells) > 0
}

// Open returns the model described by the configuration.
func (mc ModelConfig) Open(logger *zap.Logger) *model.Model {
	if mc.Inline() {
		return model.New(logger, model.Workbook{Cells: mc.Cells})
	}
	return model.Open(logger, mc.Path)
}

// JournalConfig enables the outcome journal when Path is set.
type JournalConfig struct {
	Path string `yaml:"path,omitempty" mapstructure:"path"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty" mapstructure:"level"`           // debug, info, warn, error
	Format     string `yaml:"format,omitempty" mapstructure:"format"`         // json, console
	OutputFile string `yaml:"outputFile,omitempty" mapstructure:"outputFile"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty" mapstructure:"format"` // pretty, csv, json
}

func setDefaults(v *viper.Viper) {
	tuning := solver.DefaultTuning()
	v.SetDefault("solver.maxIterations", tuning.MaxIterations)
	v.SetDefault("solver.coarseSamples", tuning.CoarseSamples)
	v.SetDefault("solver.refineSamples", tuning.RefineSamples)
	v.SetDefault("solver.refineSpan", tuning.RefineSpan)
	v.SetDefault("solver.polishRounds", tuning.PolishRounds)
	v.SetDefault("solver.gradientIterations", tuning.GradientIterations)
	v.SetDefault("solver.gradientStepFraction", tuning.GradientStepFraction)
	v.SetDefault("solver.differenceFraction", tuning.DifferenceFraction)
	v.SetDefault("solver.nullValue", tuning.NullValue)
	v.SetDefault("journal.path", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputFile", "")
	v.SetDefault("output.format", constants.OutputFormatPretty)
	v.SetDefault("model.path", "")
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. Scalar settings may be overridden from the environment
// as GOALSEEK_<SECTION>_<KEY>, for example GOALSEEK_LOGGING_LEVEL.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %w", err)
	}

	configuration, err := decode(v)
	if err != nil {
		return nil, err
	}
	if p := configuration.Model.Path; p != "" && !filepath.IsAbs(p) {
		configuration.Model.Path = filepath.Join(filepath.Dir(configPath), p)
	}
	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	return configuration, nil
}

// LoadConfigurationFromReader loads a YAML configuration from r. The
// environment is not consulted.
func LoadConfigurationFromReader(r io.Reader) (*Configuration, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config data, %w", err)
	}

	configuration, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	return configuration, nil
}

func decode(v *viper.Viper) (*Configuration, error) {
	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	return &configuration, nil
}

// Normalize applies defaults and canonical values throughout the configuration.
func (c *Configuration) Normalize() {
	c.Solver.Normalize()
	for i := range c.Problems {
		c.Problems[i].Normalize()
	}
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	if c.Output.Format == "" {
		c.Output.Format = constants.OutputFormatPretty
	}
}

// Validate normalizes the configuration and returns the first problem found.
func (c *Configuration) Validate() error {
	c.Normalize()

	hasPath := strings.TrimSpace(c.Model.Path) != ""
	switch {
	case !hasPath && !c.Model.Inline():
		return fmt.Errorf("model path or inline cells are required")
	case hasPath && c.Model.Inline():
		return fmt.Errorf("model path and inline cells are mutually exclusive")
	}
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("solver: %w", err)
	}
	if err := validation.ValidateOutputFormat(c.Output.Format); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if len(c.Problems) == 0 {
		return fmt.Errorf("at least one problem must be configured")
	}
	seen := make(map[string]bool, len(c.Problems))
	for i := range c.Problems {
		p := &c.Problems[i]
		if err := p.Validate(); err != nil {
			return fmt.Errorf("problem %q: %w", p.Name, err)
		}
		if seen[p.Name] {
			return fmt.Errorf("problem %q defined more than once", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// Problem returns the problem with the given name.
func (c *Configuration) Problem(name string) (*Problem, error) {
	for i := range c.Problems {
		if c.Problems[i].Name == name {
			return &c.Problems[i], nil
		}
	}
	return nil, fmt.Errorf("problem %q not found", name)
}

// Selected returns the named problem, or every problem when name is empty.
func (c *Configuration) Selected(name string) ([]Problem, error) {
	if name == "" {
		return c.Problems, nil
	}
	p, err := c.Problem(name)
	if err != nil {
		return nil, err
	}
	return []Problem{*p}, nil
}

// ValidateConfiguration performs advisory checks of the configuration and returns warnings
func (c *Configuration) ValidateConfiguration() []string {
	var problems []validation.ProblemConfig
	for _, p := range c.Problems {
		pc := validation.ProblemConfig{Name: p.Name}
		params := append([]ParameterConfig(nil), p.Parameters...)
		metrics := append([]MetricConfig(nil), p.Metrics...)
		for _, s := range p.Steps {
			params = append(params, s.Parameter)
			metrics = append(metrics, s.Metric)
			for _, o := range s.Fixed {
				pc.Fixed = append(pc.Fixed, o.Name)
			}
		}
		for _, param := range params {
			vp := validation.ParameterConfig{Name: param.Name, Value: param.Value, Precision: param.Precision}
			if param.Min != nil {
				vp.Min = *param.Min
			}
			if param.Max != nil {
				vp.Max = *param.Max
			}
			pc.Parameters = append(pc.Parameters, vp)
		}
		for _, m := range metrics {
			pc.Metrics = append(pc.Metrics, validation.MetricConfig{
				Name:      m.Name,
				Target:    m.Target,
				Tolerance: m.Tolerance,
				Min:       m.Min,
				Max:       m.Max,
			})
		}
		for _, o := range p.Fixed {
			pc.Fixed = append(pc.Fixed, o.Name)
		}
		problems = append(problems, pc)
	}

	validator := validation.ConfigValidator{Problems: problems}
	return validator.ValidateAll()
}
