package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/room4-2/gemini-chat/audio"
	"github.com/room4-2/gemini-chat/config"
	"github.com/room4-2/gemini-chat/ingest"
)

// ErrUnknownModel is returned when a config names a model outside the catalog.
var ErrUnknownModel = errors.New("unknown model")

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is one entry of the ledger.
type ChatTurn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// GenerationConfig holds the per-session model settings.
type GenerationConfig struct {
	Model           string  `json:"model"`
	Temperature     float32 `json:"temperature"`
	MaxOutputTokens int32   `json:"maxOutputTokens"`
	SystemPrompt    string  `json:"systemPrompt,omitempty"`
}

// DefaultGenerationConfig derives the starting settings from cfg.
func DefaultGenerationConfig(cfg *config.Config) GenerationConfig {
	return GenerationConfig{
		Model:           cfg.DefaultModel,
		Temperature:     cfg.DefaultTemperature,
		MaxOutputTokens: cfg.DefaultMaxTokens,
	}
}

// Normalize clamps the numeric ranges and checks the model name.
func (g GenerationConfig) Normalize() (GenerationConfig, error) {
	if _, ok := config.LookupModel(g.Model); !ok {
		return g, fmt.Errorf("%w: %q", ErrUnknownModel, g.Model)
	}
	g.Temperature = config.ClampTemperature(g.Temperature)
	g.MaxOutputTokens = config.ClampMaxTokens(g.MaxOutputTokens)
	return g, nil
}

// ModelInfo returns the catalog entry for the configured model.
func (g GenerationConfig) ModelInfo() config.Model {
	m, _ := config.LookupModel(g.Model)
	return m
}

// Session is the state one user accumulates: the latest normalized upload,
// the chat ledger and the generation settings. Sessions never share state.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	lastActivity time.Time
	content      ingest.Content
	ledger       []ChatTurn
	genConfig    GenerationConfig
	defaults     GenerationConfig
	audio        *audio.Buffer
	onClose      []*closeHook
	closed       bool

	turn sync.Mutex
}

// New creates a session starting from defaults.
func New(id string, defaults GenerationConfig, maxAudio int) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		lastActivity: now,
		genConfig:    defaults,
		defaults:     defaults,
		audio:        audio.NewBuffer(maxAudio),
	}
}

// Short is the log prefix for the session.
func (s *Session) Short() string {
	if len(s.ID) > 8 {
		return s.ID[:8]
	}
	return s.ID
}

// LockTurn serializes turns within the session. Call the returned func to
// release it.
func (s *Session) LockTurn() func() {
	s.turn.Lock()
	return s.turn.Unlock
}

func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Content returns the latest normalized upload.
func (s *Session) Content() ingest.Content {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content
}

// SetContent replaces the upload slot. The last upload wins.
func (s *Session) SetContent(c ingest.Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = c
	s.lastActivity = time.Now()
}

// Append adds a turn to the end of the ledger.
func (s *Session) Append(role Role, content string) ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	turn := ChatTurn{Role: role, Content: content, At: time.Now()}
	s.ledger = append(s.ledger, turn)
	s.lastActivity = turn.At
	return turn
}

// Ledger returns a copy of the turns in chronological order.
func (s *Session) Ledger() []ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatTurn, len(s.ledger))
	copy(out, s.ledger)
	return out
}

func (s *Session) Config() GenerationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.genConfig
}

// SetConfig normalizes and stores g, returning what was stored.
func (s *Session) SetConfig(g GenerationConfig) (GenerationConfig, error) {
	g, err := g.Normalize()
	if err != nil {
		return s.Config(), err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genConfig = g
	return g, nil
}

// Audio is the microphone buffer for the session's live connection.
func (s *Session) Audio() *audio.Buffer {
	return s.audio
}

// Reset clears the upload, ledger, settings and buffered audio.
func (s *Session) Reset() {
	s.mu.Lock()
	s.content = ingest.Content{}
	s.ledger = nil
	s.genConfig = s.defaults
	s.lastActivity = time.Now()
	s.mu.Unlock()

	s.audio.Clear()
}

// closeHook wraps a callback so it can be found again by identity.
type closeHook struct{ fn func() }

// OnClose registers fn to run once when the session is closed and returns a
// func that unregisters it. On a closed session fn runs immediately.
func (s *Session) OnClose(fn func()) (unregister func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn()
		return func() {}
	}
	h := &closeHook{fn: fn}
	s.onClose = append(s.onClose, h)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, other := range s.onClose {
			if other == h {
				s.onClose = append(s.onClose[:i], s.onClose[i+1:]...)
				return
			}
		}
	}
}

// Close releases the session's resources. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	hooks := s.onClose
	s.onClose = nil
	s.mu.Unlock()

	s.audio.Clear()
	for _, h := range hooks {
		h.fn()
	}
}

func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
