package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	assistant "github.com/koscakluka/ema-assistant/core"
	"github.com/koscakluka/ema-assistant/core/events"
	"github.com/muesli/reflow/wordwrap"
)

// controller is the part of the engine the UI drives.
type controller interface {
	StartConversation() error
	StartConversationText(query string) error
	StopConversation()
	SetResponseFormat(format assistant.ResponseFormat)
	ResponseFormat() assistant.ResponseFormat
	State() assistant.State
}

type styles struct {
	title     lipgloss.Style
	status    lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	info      lipgloss.Style
	err       lipgloss.Style
	help      lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f")).Padding(0, 1),
		status:    lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681")),
		user:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#58a6ff")),
		assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f")),
		info:      lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681")).Italic(true),
		err:       lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")),
		help:      lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681")),
	}
}

type eventMsg struct{ event events.Event }

type entry struct {
	style lipgloss.Style
	label string
	text  string
}

type model struct {
	engine controller
	events <-chan events.Event

	viewport viewport.Model
	input    textinput.Model
	typing   bool

	entries []entry
	// transcript is the live recognition of the current utterance.
	transcript string
	speaking   bool

	styles styles
	width  int
	height int
}

func newModel(engine controller, eventCh <-chan events.Event) model {
	input := textinput.New()
	input.Placeholder = "Ask something..."
	input.CharLimit = 256

	return model{
		engine:   engine,
		events:   eventCh,
		viewport: viewport.New(80, 20),
		input:    input,
		styles:   newStyles(),
	}
}

func (m model) Init() tea.Cmd {
	return m.listen()
}

func (m model) listen() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-m.events
		if !ok {
			return nil
		}
		return eventMsg{event: event}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(1, msg.Height-5)
		m.input.Width = max(10, msg.Width-4)
		m.refresh()
		return m, nil

	case eventMsg:
		m.handleEvent(msg.event)
		m.refresh()
		return m, m.listen()

	case tea.KeyMsg:
		if m.typing {
			return m.updateTyping(msg)
		}
		return m.updateKeys(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.engine.StopConversation()
		return m, tea.Quit
	case " ":
		m.report(m.engine.StartConversation())
	case "t":
		m.typing = true
		m.input.Reset()
		cmd := m.input.Focus()
		return m, cmd
	case "s":
		m.engine.StopConversation()
	case "h":
		format := assistant.ResponseFormatHTML
		if m.engine.ResponseFormat() == assistant.ResponseFormatHTML {
			format = assistant.ResponseFormatText
		}
		m.engine.SetResponseFormat(format)
		m.add(m.styles.info, "", fmt.Sprintf("screen output: %s (next turn)", format))
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	m.refresh()
	return m, nil
}

func (m model) updateTyping(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.typing = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		query := strings.TrimSpace(m.input.Value())
		m.typing = false
		m.input.Blur()
		if query == "" {
			return m, nil
		}
		if err := m.engine.StartConversationText(query); err != nil {
			m.report(err)
		} else {
			m.add(m.styles.user, "you", query)
		}
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, assistant.ErrConversationActive):
		m.add(m.styles.info, "", "a conversation is already running, press s to stop it")
	default:
		m.add(m.styles.err, "error", err.Error())
	}
}

func (m *model) handleEvent(event events.Event) {
	switch typedEvent := event.(type) {
	case events.RequestStart:
		m.transcript = ""
	case events.SpeechRecognition:
		if transcript := typedEvent.Transcript(); transcript != "" {
			m.transcript = transcript
		}
	case events.RequestFinished:
		if m.transcript != "" {
			m.add(m.styles.user, "you", m.transcript)
			m.transcript = ""
		}
	case events.ResponseStarted:
		m.speaking = true
	case events.ResponseFinished:
		m.speaking = false
	case events.AssistantResponse:
		if typedEvent.Text != "" {
			m.add(m.styles.assistant, "assistant", typedEvent.Text)
		}
	case events.AssistantDisplayOut:
		m.add(m.styles.info, "", fmt.Sprintf("screen output: %d bytes of html", len(typedEvent.HTML)))
	case events.DeviceAction:
		m.add(m.styles.info, "action", fmt.Sprintf("%s %v", typedEvent.Command, typedEvent.Params))
	case events.VolumeChanged:
		m.add(m.styles.info, "", fmt.Sprintf("volume set to %d%%", typedEvent.Percentage))
	case events.Error:
		m.add(m.styles.err, "error", typedEvent.Err.Error())
	case events.ConversationFinished:
		m.speaking = false
		m.transcript = ""
	}
}

func (m *model) add(style lipgloss.Style, label, text string) {
	m.entries = append(m.entries, entry{style: style, label: label, text: text})
}

func (m *model) refresh() {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}

	lines := make([]string, 0, len(m.entries)+1)
	for _, e := range m.entries {
		lines = append(lines, m.renderEntry(e, width))
	}
	if m.transcript != "" {
		lines = append(lines, m.renderEntry(entry{style: m.styles.info, label: "you", text: m.transcript + "..."}, width))
	}

	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

func (m model) renderEntry(e entry, width int) string {
	if e.label == "" {
		return e.style.Render(wordwrap.String(e.text, width))
	}
	prefix := e.label + ": "
	return e.style.Render(prefix) + wordwrap.String(e.text, max(10, width-len(prefix)))
}

func (m model) statusLine() string {
	status := m.engine.State().String()
	if m.speaking {
		status = "speaking"
	}
	return fmt.Sprintf("[%s] [%s]", status, m.engine.ResponseFormat())
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render("ema assistant"))
	b.WriteString(" ")
	b.WriteString(m.styles.status.Render(m.statusLine()))
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	if m.typing {
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(m.styles.help.Render("enter: send • esc: cancel"))
	} else {
		b.WriteString(m.styles.help.Render("space: talk • t: type • s: stop • h: html • q: quit"))
	}
	return b.String()
}
