package dialog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequiresTopic(t *testing.T) {
	testCases := []struct {
		name  string
		topic string
	}{
		{name: "empty", topic: ""},
		{name: "whitespace only", topic: "  \n\t "},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := NewBuilder().Build(FormInput{Topic: testCase.topic})

			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr), "expected a validation error, got %v", err)
			assert.Equal(t, "topic", validationErr.Field)
		})
	}
}

func TestBuildNumericDefaults(t *testing.T) {
	testCases := []struct {
		name          string
		maxTurns      string
		tokenDelay    string
		expectedTurns int
		expectedDelay int
	}{
		{name: "absent", expectedTurns: DefaultMaxTurns, expectedDelay: DefaultTokenDelayMs},
		{name: "non numeric", maxTurns: "many", tokenDelay: "fast", expectedTurns: DefaultMaxTurns, expectedDelay: DefaultTokenDelayMs},
		{name: "out of range", maxTurns: "0", tokenDelay: "-3", expectedTurns: DefaultMaxTurns, expectedDelay: DefaultTokenDelayMs},
		{name: "above maximum", maxTurns: "51", tokenDelay: "501", expectedTurns: DefaultMaxTurns, expectedDelay: DefaultTokenDelayMs},
		{name: "explicit values", maxTurns: " 10 ", tokenDelay: "0", expectedTurns: 10, expectedDelay: 0},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			cfg, err := NewBuilder().Build(FormInput{
				Topic:        "Remote work",
				MaxTurns:     testCase.maxTurns,
				TokenDelayMs: testCase.tokenDelay,
			})

			require.NoError(t, err)
			assert.Equal(t, testCase.expectedTurns, cfg.MaxTurns)
			assert.Equal(t, testCase.expectedDelay, cfg.TokenDelayMs)
		})
	}
}

func TestBuildTrimsAndFillsProviders(t *testing.T) {
	cfg, err := NewBuilder().Build(FormInput{
		Topic:         "  Is cereal soup?  ",
		RoleLabelA:    " Optimist ",
		SystemPromptA: "\nBe cheerful.\n",
		ProviderB:     "openai",
		Rules:         "  No insults. ",
	})
	require.NoError(t, err)

	assert.Equal(t, "Is cereal soup?", cfg.Topic)
	assert.Equal(t, ProviderOpenAI, cfg.ParticipantA.Provider)
	assert.Equal(t, "Optimist", cfg.ParticipantA.RoleLabel)
	assert.Equal(t, "Be cheerful.", cfg.ParticipantA.SystemPrompt)
	assert.Equal(t, ProviderOpenAI, cfg.ParticipantB.Provider)
	assert.Equal(t, "No insults.", cfg.Rules)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	b := NewBuilder()
	cfg, err := b.Build(FormInput{Topic: "Tabs or spaces", ProviderA: "mystery"})
	require.NoError(t, err, "builder only checks the topic")

	err = b.Validate(cfg)
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "participant_a.provider", validationErr.Field)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dialog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
topic: Should cities ban cars?
participant_a:
  provider: anthropic
  role_label: Urbanist
participant_b:
  provider: openai
max_turns: 4
`), 0o600))

	cfg, err := NewBuilder().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "Should cities ban cars?", cfg.Topic)
	assert.Equal(t, ProviderAnthropic, cfg.ParticipantA.Provider)
	assert.Equal(t, "Urbanist", cfg.ParticipantA.RoleLabel)
	assert.Equal(t, 4, cfg.MaxTurns)
	assert.Equal(t, DefaultTokenDelayMs, cfg.TokenDelayMs)
}

func TestLoadFileNumericDefaults(t *testing.T) {
	testCases := []struct {
		name          string
		content       string
		expectedDelay int
		expectedTurns int
	}{
		{name: "fields absent", content: "topic: Cars\n", expectedDelay: DefaultTokenDelayMs, expectedTurns: DefaultMaxTurns},
		{name: "explicit zero delay", content: "topic: Cars\ntoken_delay_ms: 0\n", expectedDelay: 0, expectedTurns: DefaultMaxTurns},
		{name: "explicit values", content: "topic: Cars\ntoken_delay_ms: 120\nmax_turns: 10\n", expectedDelay: 120, expectedTurns: 10},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "dialog.yaml")
			require.NoError(t, os.WriteFile(path, []byte(testCase.content), 0o600))

			cfg, err := NewBuilder().LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, testCase.expectedDelay, cfg.TokenDelayMs)
			assert.Equal(t, testCase.expectedTurns, cfg.MaxTurns)
		})
	}
}

func TestLoadFileWithoutTopicFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dialog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_turns: 4\n"), 0o600))

	_, err := NewBuilder().LoadFile(path)
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
}

func TestSchemaDescribesConfigFields(t *testing.T) {
	raw, err := SchemaJSON()
	require.NoError(t, err)

	var schema struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(raw, &schema))
	for _, field := range []string{"topic", "participant_a", "participant_b", "max_turns", "token_delay_ms", "rules"} {
		assert.Contains(t, schema.Properties, field)
	}
}
