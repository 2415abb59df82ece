package terminal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	controller "github.com/koscakluka/ema-discuss/core"
	"github.com/koscakluka/ema-discuss/core/dialog"
)

// Controls is the part of the controller the terminal drives. The model only
// calls it from commands, never from Update or View, because sink
// instructions are delivered while the controller holds its lock.
type Controls interface {
	Start(ctx context.Context, cfg dialog.Config) (string, error)
	TogglePause(ctx context.Context) (bool, error)
	Intervene(ctx context.Context, message string) (dialog.InterventionResult, error)
	Stop(ctx context.Context) error
	Reset(ctx context.Context) error
}

type phase int

const (
	phaseStarting phase = iota
	phaseRunning
	phaseFinished
	phaseStopped
	phaseConfiguring
)

type entry struct {
	turnIndex int
	provider  dialog.Provider
	roleLabel string
	moderator bool
	text      strings.Builder
	final     bool
}

type (
	startedMsg struct {
		SessionID string
		Err       error
	}
	commandErrMsg struct {
		Op  string
		Err error
	}
)

// Model renders one dialog and maps keys to controller commands.
type Model struct {
	ctx      context.Context
	controls Controls
	config   dialog.Config

	phase     phase
	sessionID string
	entries   []*entry
	turn      int
	maxTurns  int
	paused    bool
	status    string
	err       error

	input       textinput.Model
	intervening bool

	width  int
	height int
}

func NewModel(ctx context.Context, controls Controls, cfg dialog.Config) Model {
	input := textinput.New()
	input.Placeholder = "Moderator message"
	input.Prompt = "» "
	input.CharLimit = 2000

	return Model{
		ctx:      ctx,
		controls: controls,
		config:   cfg,
		phase:    phaseStarting,
		maxTurns: cfg.MaxTurns,
		status:   "Starting dialog...",
		input:    input,
	}
}

func (m Model) Init() tea.Cmd {
	return m.startCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(bodyWidth(m.width)-4, 10)
		return m, nil

	case tea.KeyMsg:
		if m.intervening {
			return m.updateIntervention(msg)
		}
		return m.updateKeys(msg)

	case startedMsg:
		if msg.Err != nil {
			m.phase = phaseConfiguring
			m.err = msg.Err
			m.status = "Could not start dialog"
			return m, nil
		}
		m.phase = phaseRunning
		m.sessionID = msg.SessionID
		m.err = nil
		m.status = "Dialog running"
		return m, nil

	case commandErrMsg:
		var validationErr *dialog.ValidationError
		if errors.As(msg.Err, &validationErr) {
			m.status = validationErr.Reason
			return m, nil
		}
		m.err = fmt.Errorf("%s failed: %w", msg.Op, msg.Err)
		return m, nil

	case messageShellMsg:
		// A continued dialog streams new turns after it finished.
		if m.phase == phaseFinished {
			m.phase = phaseRunning
			m.status = "Dialog running"
		}
		m.entries = append(m.entries, &entry{turnIndex: msg.TurnIndex, provider: msg.Provider, roleLabel: msg.RoleLabel})
		return m, nil

	case tokenMsg:
		if current := m.current(); current != nil {
			current.text.WriteString(msg.Text)
		}
		return m, nil

	case finalizeMsg:
		if current := m.current(); current != nil {
			current.text.Reset()
			current.text.WriteString(plainText(msg.Content))
			current.final = true
		}
		return m, nil

	case moderatorMsg:
		moderator := &entry{moderator: true, roleLabel: "Moderator (You)", final: true}
		moderator.text.WriteString(plainText(msg.Content))
		m.entries = append(m.entries, moderator)
		return m, nil

	case progressMsg:
		m.turn = msg.Turn
		m.maxTurns = msg.MaxTurns
		return m, nil

	case statusMsg:
		m.status = msg.Text
		switch msg.Kind {
		case controller.StatusPaused:
			m.paused = true
		case controller.StatusResumed:
			m.paused = false
		case controller.StatusFinished:
			m.phase = phaseFinished
		case controller.StatusStopped:
			m.phase = phaseStopped
			m.paused = false
		}
		return m, nil

	case streamClosedMsg:
		m.err = msg.Err
		m.status = "Connection to the dialog was lost"
		return m, nil

	case resetMsg:
		m.phase = phaseConfiguring
		m.entries = nil
		m.sessionID = ""
		m.turn = 0
		m.maxTurns = m.config.MaxTurns
		m.paused = false
		m.err = nil
		m.status = "Press enter to start a new dialog"
		return m, nil
	}

	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "p", " ":
		if m.phase != phaseRunning {
			return m, nil
		}
		return m, m.command("pause", func(ctx context.Context) error {
			_, err := m.controls.TogglePause(ctx)
			return err
		})

	case "s":
		if m.phase != phaseRunning && m.phase != phaseFinished {
			return m, nil
		}
		return m, m.command("stop", m.controls.Stop)

	case "n":
		return m, m.command("reset", m.controls.Reset)

	case "i":
		if m.phase != phaseRunning && m.phase != phaseFinished {
			return m, nil
		}
		m.intervening = true
		return m, m.input.Focus()

	case "enter":
		if m.phase != phaseConfiguring {
			return m, nil
		}
		m.phase = phaseStarting
		m.status = "Starting dialog..."
		return m, m.startCmd()
	}

	return m, nil
}

func (m Model) updateIntervention(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.intervening = false
		m.input.Blur()
		m.input.SetValue("")
		return m, nil

	case tea.KeyEnter:
		message := m.input.Value()
		m.intervening = false
		m.input.Blur()
		m.input.SetValue("")
		return m, m.command("intervention", func(ctx context.Context) error {
			_, err := m.controls.Intervene(ctx, message)
			return err
		})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) current() *entry {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if !m.entries[i].moderator {
			if m.entries[i].final {
				return nil
			}
			return m.entries[i]
		}
	}
	return nil
}

func (m Model) startCmd() tea.Cmd {
	ctx, controls, cfg := m.ctx, m.controls, m.config
	return func() tea.Msg {
		sessionID, err := controls.Start(ctx, cfg)
		return startedMsg{SessionID: sessionID, Err: err}
	}
}

func (m Model) command(op string, run func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		if err := run(ctx); err != nil {
			return commandErrMsg{Op: op, Err: err}
		}
		return nil
	}
}
