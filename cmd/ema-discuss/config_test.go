package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koscakluka/ema-discuss/core/dialog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings(t *testing.T) {
	testCases := []struct {
		name     string
		env      map[string]string
		args     []string
		expected settings
	}{
		{
			name: "defaults",
			expected: settings{
				BaseURL:        "http://localhost:8000",
				RequestTimeout: 30 * time.Second,
				LogFile:        "ema-discuss.log",
				Telemetry:      "none",
			},
		},
		{
			name: "environment",
			env: map[string]string{
				"EMA_DISCUSS_BASE_URL":        "http://dialogs.internal:9000",
				"EMA_DISCUSS_REQUEST_TIMEOUT": "5s",
				"EMA_DISCUSS_RELAY_ADDR":      ":8080",
				"EMA_DISCUSS_RELAY_ORIGINS":   "http://a.example,http://b.example",
			},
			expected: settings{
				BaseURL:        "http://dialogs.internal:9000",
				RequestTimeout: 5 * time.Second,
				LogFile:        "ema-discuss.log",
				Telemetry:      "none",
				RelayAddr:      ":8080",
				RelayOrigins:   []string{"http://a.example", "http://b.example"},
			},
		},
		{
			name: "flags override environment",
			env:  map[string]string{"EMA_DISCUSS_BASE_URL": "http://from-env"},
			args: []string{"--base-url", "http://from-flag", "--request-timeout", "2s", "--telemetry", "stdout", "--log-file", "/tmp/x.log"},
			expected: settings{
				BaseURL:        "http://from-flag",
				RequestTimeout: 2 * time.Second,
				LogFile:        "/tmp/x.log",
				Telemetry:      "stdout",
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for key, value := range testCase.env {
				t.Setenv(key, value)
			}

			var loaded settings
			root := newRootCmd()
			run, _, err := root.Find([]string{"run"})
			require.NoError(t, err)
			run.RunE = func(cmd *cobra.Command, _ []string) error {
				loaded, err = loadSettings(cmd)
				return err
			}

			root.SetArgs(append([]string{"run"}, testCase.args...))
			require.NoError(t, root.Execute())
			assert.Equal(t, testCase.expected, loaded)
		})
	}
}

func TestLoadSettingsReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("EMA_DISCUSS_BASE_URL=http://dotenv:1234\n"), 0o600))
	t.Setenv("EMA_DISCUSS_BASE_URL", "")
	require.NoError(t, os.Unsetenv("EMA_DISCUSS_BASE_URL"))

	s, err := loadSettings(&cobra.Command{})
	require.NoError(t, err)
	assert.Equal(t, "http://dotenv:1234", s.BaseURL)
}

func TestDialogFlagsBuild(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "dialog.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`topic: "  From file  "
participant_b:
  provider: openai
  role_label: Critic
max_turns: 4
`), 0o600))

	testCases := []struct {
		name          string
		args          []string
		positional    []string
		expected      dialog.Config
		expectedField string
	}{
		{
			name: "flags",
			args: []string{"-t", "Tabs or spaces?", "--role-a", "Pragmatist", "--max-turns", "8", "--token-delay", "0"},
			expected: dialog.Config{
				Topic:        "Tabs or spaces?",
				ParticipantA: dialog.Participant{Provider: dialog.ProviderOpenAI, RoleLabel: "Pragmatist"},
				ParticipantB: dialog.Participant{Provider: dialog.ProviderAnthropic},
				MaxTurns:     8,
				TokenDelayMs: 0,
			},
		},
		{
			name:       "positional topic",
			positional: []string{"Is remote work here to stay?"},
			args:       []string{"--max-turns", "many"},
			expected: dialog.Config{
				Topic:        "Is remote work here to stay?",
				ParticipantA: dialog.Participant{Provider: dialog.ProviderOpenAI},
				ParticipantB: dialog.Participant{Provider: dialog.ProviderAnthropic},
				MaxTurns:     dialog.DefaultMaxTurns,
				TokenDelayMs: dialog.DefaultTokenDelayMs,
			},
		},
		{
			name: "file",
			args: []string{"-c", file, "-t", "ignored"},
			expected: dialog.Config{
				Topic:        "From file",
				ParticipantA: dialog.Participant{Provider: dialog.ProviderOpenAI},
				ParticipantB: dialog.Participant{Provider: dialog.ProviderOpenAI, RoleLabel: "Critic"},
				MaxTurns:     4,
				TokenDelayMs: dialog.DefaultTokenDelayMs,
			},
		},
		{
			name:          "missing topic",
			args:          []string{"--role-a", "Pragmatist"},
			expectedField: "topic",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			var flags dialogFlags
			cmd := &cobra.Command{}
			flags.register(cmd)
			require.NoError(t, cmd.ParseFlags(testCase.args))

			cfg, err := flags.build(dialog.NewBuilder(), testCase.positional)
			if testCase.expectedField != "" {
				var validationErr *dialog.ValidationError
				require.ErrorAs(t, err, &validationErr)
				assert.Equal(t, testCase.expectedField, validationErr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, cfg)
		})
	}
}

func TestSchemaCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"schema"})

	require.NoError(t, root.Execute())

	var schema map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &schema))
	assert.Contains(t, schema, "properties")
}

func TestStateCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/dialog/session-1/state", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"config": {"topic": "Tabs or spaces?", "participant_a": {"provider": "openai"}, "participant_b": {"provider": "anthropic"}, "max_turns": 2, "token_delay_ms": 0},
			"messages": [{"provider": "openai", "role_label": "", "content": "Tabs."}],
			"current_turn": 1,
			"finished": false
		}`))
	}))
	t.Cleanup(server.Close)
	t.Chdir(t.TempDir())

	testCases := []struct {
		name     string
		output   string
		contains []string
	}{
		{name: "yaml", output: "yaml", contains: []string{"Tabs or spaces?", "current_turn: 1", "content: Tabs."}},
		{name: "json", output: "json", contains: []string{`"topic": "Tabs or spaces?"`, `"current_turn": 1`}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			var out bytes.Buffer
			root := newRootCmd()
			root.SetOut(&out)
			root.SetArgs([]string{"state", "session-1", "--base-url", server.URL, "-o", testCase.output})

			require.NoError(t, root.Execute())
			for _, expected := range testCase.contains {
				assert.Contains(t, out.String(), expected)
			}
		})
	}
}

func TestStateCommandRejectsUnknownFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"config": {"topic": "x"}, "messages": [], "current_turn": 0, "finished": true}`))
	}))
	t.Cleanup(server.Close)
	t.Chdir(t.TempDir())

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"state", "session-1", "--base-url", server.URL, "-o", "toml"})

	assert.ErrorContains(t, root.Execute(), `unknown output format "toml"`)
}
