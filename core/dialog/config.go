package dialog

// Provider identifies the model vendor answering for a participant.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Providers returns every provider the dialog backend accepts.
func Providers() []Provider {
	return []Provider{ProviderOpenAI, ProviderAnthropic}
}

func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic:
		return true
	}
	return false
}

// DefaultRoleLabel is the label the backend shows for a participant that was
// configured without one.
func (p Provider) DefaultRoleLabel() string {
	switch p {
	case ProviderOpenAI:
		return "GPT"
	case ProviderAnthropic:
		return "Claude"
	}
	return string(p)
}

const (
	DefaultMaxTurns     = 6
	DefaultTokenDelayMs = 80

	// MaxMaxTurns and MaxTokenDelayMs are the upper bounds the backend
	// accepts. Values above them fall back to the defaults.
	MaxMaxTurns     = 50
	MaxTokenDelayMs = 500
)

// Participant describes one side of the dialog.
type Participant struct {
	Provider     Provider `json:"provider" yaml:"provider" validate:"required,oneof=openai anthropic" jsonschema:"enum=openai,enum=anthropic"`
	RoleLabel    string   `json:"role_label" yaml:"role_label" jsonschema:"description=Optional perspective or role. Empty means an open discussion."`
	SystemPrompt string   `json:"system_prompt" yaml:"system_prompt" jsonschema:"description=Optional system prompt that defines the personality."`
}

// Config is an immutable dialog configuration. Build it with [Builder];
// hosts must not mutate a Config after a session was started with it.
type Config struct {
	Topic        string      `json:"topic" yaml:"topic" validate:"required" jsonschema:"required,minLength=1,description=The discussion topic"`
	ParticipantA Participant `json:"participant_a" yaml:"participant_a"`
	ParticipantB Participant `json:"participant_b" yaml:"participant_b"`
	MaxTurns     int         `json:"max_turns" yaml:"max_turns" validate:"min=1" jsonschema:"minimum=1,maximum=50,default=6,description=Total number of turns (A+B)"`
	TokenDelayMs int         `json:"token_delay_ms" yaml:"token_delay_ms" validate:"min=0" jsonschema:"minimum=0,maximum=500,default=80,description=Delay in milliseconds between streamed tokens"`
	Rules        string      `json:"rules" yaml:"rules" jsonschema:"description=Optional additional rules for the dialog"`
}

// Participants returns the participants in speaking order.
func (c Config) Participants() [2]Participant {
	return [2]Participant{c.ParticipantA, c.ParticipantB}
}

// InterventionResult is the server's answer to a moderator message.
//
// MaxTurns is set only when Continued is true: the dialog had already
// finished and the server extended it to MaxTurns.
type InterventionResult struct {
	Continued bool
	MaxTurns  *int
}

// Message is one finished contribution as stored by the backend.
type Message struct {
	Provider    Provider `json:"provider" yaml:"provider"`
	RoleLabel   string   `json:"role_label" yaml:"role_label"`
	Content     string   `json:"content" yaml:"content"`
	IsModerator bool     `json:"is_moderator,omitempty" yaml:"is_moderator,omitempty"`
}

// State is the backend's view of a session.
type State struct {
	Config      Config    `json:"config" yaml:"config"`
	Messages    []Message `json:"messages" yaml:"messages"`
	CurrentTurn int       `json:"current_turn" yaml:"current_turn"`
	Finished    bool      `json:"finished" yaml:"finished"`
}
