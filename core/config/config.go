package config

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	ConfigurationName = "config.yaml"

	// DefaultPrompt is used when no config file overrides it.
	DefaultPrompt = "jsh> "
)

type Configuration struct {
	// Prompt is written before each command line is read.
	Prompt string `json:"prompt" validate:"required"`

	// HistoryFile persists line history across sessions when set.
	HistoryFile string `json:"history_file"`

	// Verbose enables diagnostic logging, same as the -v flag.
	Verbose bool `json:"verbose"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

// Default returns the configuration used when no config file exists.
func Default() *Configuration {
	return &Configuration{
		Prompt: DefaultPrompt,
	}
}
