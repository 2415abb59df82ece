package main

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/koscakluka/ema-discuss/core/dialog"
	"github.com/spf13/cobra"
)

const envPrefix = "EMA_DISCUSS"

// settings are read from the environment (and a .env file) first; flags
// that were set explicitly win.
type settings struct {
	BaseURL        string        `envconfig:"BASE_URL" default:"http://localhost:8000"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	LogFile        string        `envconfig:"LOG_FILE" default:"ema-discuss.log"`
	Telemetry      string        `envconfig:"TELEMETRY" default:"none"`
	RelayAddr      string        `envconfig:"RELAY_ADDR"`
	RelayOrigins   []string      `envconfig:"RELAY_ORIGINS"`
}

func loadSettings(cmd *cobra.Command) (settings, error) {
	_ = godotenv.Load()

	var s settings
	if err := envconfig.Process(envPrefix, &s); err != nil {
		return settings{}, fmt.Errorf("failed to read environment: %w", err)
	}

	flags := cmd.Flags()
	for name, target := range map[string]*string{
		"base-url":   &s.BaseURL,
		"log-file":   &s.LogFile,
		"telemetry":  &s.Telemetry,
		"relay-addr": &s.RelayAddr,
	} {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			continue
		}
		value, err := flags.GetString(name)
		if err != nil {
			return settings{}, err
		}
		*target = value
	}
	if flags.Lookup("request-timeout") != nil && flags.Changed("request-timeout") {
		timeout, err := flags.GetDuration("request-timeout")
		if err != nil {
			return settings{}, err
		}
		s.RequestTimeout = timeout
	}

	return s, nil
}

// dialogFlags mirror the configuration form.
type dialogFlags struct {
	file  string
	input dialog.FormInput
}

func (f *dialogFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.file, "config", "c", "", "YAML dialog definition; flags are ignored when set")
	flags.StringVarP(&f.input.Topic, "topic", "t", "", "discussion topic")
	flags.StringVar(&f.input.ProviderA, "provider-a", string(dialog.ProviderOpenAI), "provider of participant A (openai|anthropic)")
	flags.StringVar(&f.input.RoleLabelA, "role-a", "", "role or perspective of participant A")
	flags.StringVar(&f.input.SystemPromptA, "prompt-a", "", "system prompt of participant A")
	flags.StringVar(&f.input.ProviderB, "provider-b", string(dialog.ProviderAnthropic), "provider of participant B (openai|anthropic)")
	flags.StringVar(&f.input.RoleLabelB, "role-b", "", "role or perspective of participant B")
	flags.StringVar(&f.input.SystemPromptB, "prompt-b", "", "system prompt of participant B")
	flags.StringVar(&f.input.MaxTurns, "max-turns", "", fmt.Sprintf("total turns, 1-%d (default %d)", dialog.MaxMaxTurns, dialog.DefaultMaxTurns))
	flags.StringVar(&f.input.TokenDelayMs, "token-delay", "", fmt.Sprintf("delay between tokens in ms, 0-%d (default %d)", dialog.MaxTokenDelayMs, dialog.DefaultTokenDelayMs))
	flags.StringVar(&f.input.Rules, "rules", "", "additional rules for the dialog")
}

// build resolves the dialog config. A positional argument is taken as the
// topic when --topic is not given.
func (f *dialogFlags) build(builder *dialog.Builder, args []string) (dialog.Config, error) {
	if f.file != "" {
		return builder.LoadFile(f.file)
	}

	input := f.input
	if input.Topic == "" && len(args) > 0 {
		input.Topic = args[0]
	}
	return builder.Build(input)
}
