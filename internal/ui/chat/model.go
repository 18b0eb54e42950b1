// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/cardiochat/internal/client"
	"github.com/jeranaias/cardiochat/internal/render"
	"github.com/jeranaias/cardiochat/internal/ui/styles"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Conversation is the container the chat view drives.
type Conversation interface {
	client.Actions
	ID() string
	UIState() *render.Timeline
	OnLoad(ctx context.Context, id string) (render.State, error)
	InFlight() bool
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Options configures a chat view.
type Options struct {
	Conversation Conversation

	// Resume loads this conversation id on start. Empty starts fresh.
	Resume string

	ModelName string

	// UserID is shown in the header. Empty means guest mode.
	UserID string

	Theme  *styles.Theme
	Logger *slog.Logger
}

// Model is the Bubble Tea model for the chat view.
type Model struct {
	ctx        context.Context
	conv       Conversation
	controller *client.Controller
	resume     string

	theme     *styles.Theme
	modelName string
	userID    string

	width  int
	height int

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model
	keyMap   KeyMap

	statusMsg string
	lastError error
	showHelp  bool
	quitting  bool
}

// New creates the chat view.
func New(ctx context.Context, opts Options) Model {
	if opts.Theme == nil {
		opts.Theme = styles.NewTheme()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	render.SetTheme(opts.Theme)

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about heart health..."
	ti.CharLimit = 4096
	ti.Focus()

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: styles.LineSpinner.Frames,
		FPS:    styles.LineSpinner.Duration(),
	}
	sp.Style = opts.Theme.Spinner

	return Model{
		ctx:        ctx,
		conv:       opts.Conversation,
		controller: client.NewController(opts.Conversation, opts.Conversation.UIState(), opts.Logger),
		resume:     opts.Resume,
		theme:      opts.Theme,
		modelName:  opts.ModelName,
		userID:     opts.UserID,
		width:      80,
		height:     24,
		viewport:   vp,
		input:      ti,
		spinner:    sp,
		help:       help.New(),
		keyMap:     DefaultKeyMap(),
	}
}

// Init starts watching the Render State and loads the resumed conversation.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick, m.watch()}
	if m.resume != "" {
		cmds = append(cmds, m.load(m.resume))
	}
	return tea.Batch(cmds...)
}

// =============================================================================
// COMMANDS
// =============================================================================

// watch waits for the next change of the Render State or of the unit that
// is still streaming. The channels are taken before the state is rendered,
// so no change between render and wait is lost.
func (m Model) watch() tea.Cmd {
	ui := m.conv.UIState()
	timelineChanged := ui.Changed()

	var liveChanged <-chan struct{}
	units := ui.Units()
	for i := len(units) - 1; i >= 0; i-- {
		if live, ok := units[i].Live(); ok && !live.IsDone() {
			liveChanged = live.Changed()
			break
		}
	}

	return func() tea.Msg {
		select {
		case <-timelineChanged:
		case <-liveChanged:
		}
		return stateChangedMsg{}
	}
}

func (m Model) load(id string) tea.Cmd {
	conv := m.conv
	ctx := m.ctx
	return func() tea.Msg {
		state, err := conv.OnLoad(ctx, id)
		return loadedMsg{units: len(state), err: err}
	}
}

func (m Model) submit(text string, related bool) tea.Cmd {
	controller := m.controller
	ctx := m.ctx
	return func() tea.Msg {
		var err error
		if related {
			_, err = controller.ClickRelated(ctx, text)
		} else {
			_, err = controller.Submit(ctx, text)
		}
		return submittedMsg{err: err}
	}
}

// =============================================================================
// MESSAGES
// =============================================================================

type stateChangedMsg struct{}

type loadedMsg struct {
	units int
	err   error
}

type submittedMsg struct {
	err error
}

// statusTimeout clears the status line.
type statusTimeoutMsg struct{ text string }

func clearStatusAfter(text string, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return statusTimeoutMsg{text: text} })
}
