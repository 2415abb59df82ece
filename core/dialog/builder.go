package dialog

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FormInput is the raw, form-equivalent input a host collects from the
// operator. Numeric fields are kept as text because forms deliver text.
type FormInput struct {
	Topic string

	ProviderA     string
	RoleLabelA    string
	SystemPromptA string

	ProviderB     string
	RoleLabelB    string
	SystemPromptB string

	MaxTurns     string
	TokenDelayMs string
	Rules        string
}

// Builder turns operator input into a [Config].
//
// Only the topic can make a build fail. Numeric fields that are absent,
// non-numeric or out of range fall back to their defaults.
type Builder struct {
	validate *validator.Validate
}

func NewBuilder() *Builder {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonFieldName)
	return &Builder{validate: validate}
}

func (b *Builder) Build(in FormInput) (Config, error) {
	cfg := Config{
		Topic: in.Topic,
		ParticipantA: Participant{
			Provider:     Provider(strings.TrimSpace(in.ProviderA)),
			RoleLabel:    in.RoleLabelA,
			SystemPrompt: in.SystemPromptA,
		},
		ParticipantB: Participant{
			Provider:     Provider(strings.TrimSpace(in.ProviderB)),
			RoleLabel:    in.RoleLabelB,
			SystemPrompt: in.SystemPromptB,
		},
		MaxTurns:     parseBounded(in.MaxTurns, 1, MaxMaxTurns, DefaultMaxTurns),
		TokenDelayMs: parseBounded(in.TokenDelayMs, 0, MaxTokenDelayMs, DefaultTokenDelayMs),
		Rules:        in.Rules,
	}

	return b.Normalize(cfg)
}

// Normalize trims text fields, fills defaults and checks the topic. It is
// the path configs loaded from files take, so they obey the same rules as
// form input.
func (b *Builder) Normalize(cfg Config) (Config, error) {
	cfg.Topic = strings.TrimSpace(cfg.Topic)
	cfg.Rules = strings.TrimSpace(cfg.Rules)
	cfg.ParticipantA = normalizeParticipant(cfg.ParticipantA, ProviderOpenAI)
	cfg.ParticipantB = normalizeParticipant(cfg.ParticipantB, ProviderAnthropic)
	if cfg.MaxTurns < 1 || cfg.MaxTurns > MaxMaxTurns {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.TokenDelayMs < 0 || cfg.TokenDelayMs > MaxTokenDelayMs {
		cfg.TokenDelayMs = DefaultTokenDelayMs
	}

	if err := b.validate.StructPartial(cfg, "Topic"); err != nil {
		return Config{}, toValidationError(err)
	}

	return cfg, nil
}

// Validate checks every constraint of cfg, not only the topic. Controllers
// run it before sending a config so obviously broken configs never reach
// the backend.
func (b *Builder) Validate(cfg Config) error {
	if err := b.validate.Struct(cfg); err != nil {
		return toValidationError(err)
	}
	return nil
}

// LoadFile reads a YAML dialog definition and normalizes it.
func (b *Builder) LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read dialog file: %w", err)
	}

	// Fields the file leaves out keep their defaults.
	cfg := Config{MaxTurns: DefaultMaxTurns, TokenDelayMs: DefaultTokenDelayMs}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, &ValidationError{Reason: fmt.Sprintf("malformed dialog file %s: %v", path, err)}
	}

	return b.Normalize(cfg)
}

func normalizeParticipant(p Participant, fallback Provider) Participant {
	if p.Provider == "" {
		p.Provider = fallback
	}
	p.RoleLabel = strings.TrimSpace(p.RoleLabel)
	p.SystemPrompt = strings.TrimSpace(p.SystemPrompt)
	return p
}

func parseBounded(raw string, min, max, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < min || value > max {
		return fallback
	}
	return value
}

func toValidationError(err error) error {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return &ValidationError{Reason: err.Error()}
	}

	first := fieldErrors[0]
	field := strings.TrimPrefix(first.Namespace(), "Config.")
	switch first.Tag() {
	case "required":
		return &ValidationError{Field: field, Reason: "must not be empty"}
	case "oneof":
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be one of %s", first.Param())}
	case "min":
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be at least %s", first.Param())}
	default:
		return &ValidationError{Field: field, Reason: fmt.Sprintf("failed %q check", first.Tag())}
	}
}
