package main

import (
	"encoding/json"
	"fmt"

	"github.com/koscakluka/ema-discuss/core/api"
	"github.com/koscakluka/ema-discuss/core/dialog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ema-discuss",
		Short: "Watch and steer a live dialog between two language models",
		Long: `ema-discuss starts a dialog on a backend, streams both participants'
turns into the terminal and lets you pause, stop, restart or intervene as
the moderator.

Settings are read from EMA_DISCUSS_* environment variables (a .env file in
the working directory is loaded first); flags override them.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("base-url", "", "dialog backend URL (env EMA_DISCUSS_BASE_URL)")
	rootCmd.PersistentFlags().Duration("request-timeout", 0, "timeout of non-streaming backend calls (env EMA_DISCUSS_REQUEST_TIMEOUT)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newSchemaCmd())
	rootCmd.AddCommand(newStateCmd())

	return rootCmd
}

func newClient(s settings) (*api.Client, error) {
	return api.NewClient(s.BaseURL, api.WithRequestTimeout(s.RequestTimeout))
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of dialog definition files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := dialog.SchemaJSON()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return err
		},
	}
}

func newStateCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "state <session-id>",
		Short: "Print the backend's view of a dialog session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(s)
			if err != nil {
				return err
			}

			state, err := client.SessionState(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeState(cmd, output, state)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format (yaml|json)")

	return cmd
}

func writeState(cmd *cobra.Command, format string, state dialog.State) error {
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(state)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(state)
	}
	return fmt.Errorf("unknown output format %q", format)
}
