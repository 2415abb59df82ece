package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	controller "github.com/koscakluka/ema-discuss/core"
	"github.com/koscakluka/ema-discuss/core/dialog"
	"github.com/koscakluka/ema-discuss/core/presentation/terminal"
	"github.com/koscakluka/ema-discuss/core/presentation/wsrelay"
	"github.com/koscakluka/ema-discuss/internal/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"golang.org/x/sync/errgroup"
)

const (
	scopeName       = "github.com/koscakluka/ema-discuss/cmd/ema-discuss"
	shutdownTimeout = 5 * time.Second
)

func newRunCmd() *cobra.Command {
	var flags dialogFlags

	cmd := &cobra.Command{
		Use:   "run [topic]",
		Short: "Start a dialog and follow it in the terminal",
		Example: `  ema-discuss run "Is remote work here to stay?"
  ema-discuss run -t "Tabs or spaces?" --role-a Pragmatist --role-b Purist --max-turns 8
  ema-discuss run -c dialog.yaml --relay-addr :8080`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			cfg, err := flags.build(dialog.NewBuilder(), args)
			if err != nil {
				return err
			}
			return runDialog(cmd.Context(), s, cfg)
		},
	}

	flags.register(cmd)
	cmd.Flags().String("log-file", "", "file receiving logs and telemetry (env EMA_DISCUSS_LOG_FILE)")
	cmd.Flags().String("telemetry", "", "telemetry exporter, none|stdout (env EMA_DISCUSS_TELEMETRY)")
	cmd.Flags().String("relay-addr", "", "also serve the dialog to browsers over websocket at this address (env EMA_DISCUSS_RELAY_ADDR)")

	return cmd
}

func runDialog(ctx context.Context, s settings, cfg dialog.Config) (err error) {
	logFile, err := os.OpenFile(s.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	telemetryConfig := telemetry.DefaultConfig()
	telemetryConfig.Exporter = s.Telemetry
	telemetryConfig.Output = logFile
	telemetryConfig.LogOutput = logFile
	shutdownTelemetry, err := telemetry.Init(ctx, telemetryConfig)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err = errors.Join(err, shutdownTelemetry(shutdownCtx))
	}()
	slog.SetDefault(otelslog.NewLogger(scopeName))

	client, err := newClient(s)
	if err != nil {
		return err
	}

	// The terminal sink needs the program, and the program needs a model
	// driving the controller, so the sink is pointed at the program last.
	programRef := &programSender{}
	termSink := terminal.NewSink(programRef)

	sinks := []controller.PresentationSink{termSink}
	var relay *wsrelay.Relay
	if s.RelayAddr != "" {
		var relayOpts []wsrelay.Option
		if len(s.RelayOrigins) > 0 {
			relayOpts = append(relayOpts, wsrelay.WithAllowedOrigins(s.RelayOrigins...))
		}
		relay = wsrelay.NewRelay(relayOpts...)
		sinks = append(sinks, relay)
	}

	ctrl := controller.NewController(
		controller.WithBackend(client),
		controller.WithPresentationSink(sinks...),
		controller.WithResetCallback(termSink.Reset),
		controller.WithStreamClosedCallback(termSink.StreamClosed),
	)
	defer ctrl.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, groupCtx := errgroup.WithContext(ctx)

	program := tea.NewProgram(
		terminal.NewModel(ctx, ctrl, cfg),
		tea.WithAltScreen(),
		tea.WithContext(groupCtx),
	)
	programRef.program.Store(program)

	group.Go(func() error {
		defer cancel()
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("terminal failed: %w", err)
		}
		return nil
	})

	if relay != nil {
		mux := http.NewServeMux()
		mux.Handle("/ws", relay)
		server := &http.Server{Addr: s.RelayAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		group.Go(func() error {
			slog.InfoContext(groupCtx, "serving websocket relay", "addr", s.RelayAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("relay server failed: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			_ = relay.Close()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	return group.Wait()
}

type programSender struct {
	program atomic.Pointer[tea.Program]
}

func (s *programSender) Send(msg tea.Msg) {
	if program := s.program.Load(); program != nil {
		program.Send(msg)
	}
}
