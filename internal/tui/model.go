package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pdf-chat/internal/models"
	"pdf-chat/internal/parser"
	"pdf-chat/internal/rag"
)

// processCommand reloads the session from the files that follow it.
const processCommand = "/process"

// Asker is the TUI-facing subset of a chat session.
type Asker interface {
	Ask(ctx context.Context, question string) (*rag.Answer, error)
	Ingest(ctx context.Context, docs []models.Document) error
	History() []models.Turn
}

type answerMsg struct {
	answer *rag.Answer
	err    error
}

type ingestMsg struct {
	docs int
	err  error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx      context.Context
	session  Asker
	input    textinput.Model
	viewport viewport.Model
	turns    []models.Turn
	sources  int
	summary  string
	status   string
	busy     bool
	ready    bool
}

// New creates a chat model; summary is shown under the header.
func New(ctx context.Context, session Asker, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about your documents"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:      ctx,
		session:  session,
		input:    ti,
		viewport: vp,
		turns:    session.History(),
		summary:  summary,
		status:   "Ready. Enter to ask, /process FILE... to reload documents, Esc to quit.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ch := chatBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-ch)
		m.refresh()
		return m, nil
	case answerMsg:
		m.busy = false
		m.turns = m.session.History()
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.sources = len(msg.answer.Sources)
			m.status = fmt.Sprintf("Answered from %d chunks.", m.sources)
		}
		m.refresh()
		return m, nil
	case ingestMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.summary = fmt.Sprintf("%d documents indexed", msg.docs)
			m.status = fmt.Sprintf("Processed %d documents.", msg.docs)
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			if files, ok := parseProcess(q); ok {
				m.input.Reset()
				if len(files) == 0 {
					m.status = "Usage: " + processCommand + " FILE..."
					return m, nil
				}
				m.busy = true
				m.status = fmt.Sprintf("Processing %d documents...", len(files))
				return m, m.process(files)
			}
			m.busy = true
			m.input.Reset()
			m.turns = append(m.turns, models.Turn{Role: models.RoleUser, Content: q})
			m.status = "Thinking..."
			m.refresh()
			return m, m.ask(q)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	ctx, session := m.ctx, m.session
	return func() tea.Msg {
		answer, err := session.Ask(ctx, question)
		return answerMsg{answer: answer, err: err}
	}
}

// process reads files and rebuilds the session index from them.
func (m Model) process(files []string) tea.Cmd {
	ctx, session := m.ctx, m.session
	return func() tea.Msg {
		docs, err := parser.ReadFiles(files)
		if err != nil {
			return ingestMsg{err: err}
		}
		if err := session.Ingest(ctx, docs); err != nil {
			return ingestMsg{err: err}
		}
		return ingestMsg{docs: len(docs)}
	}
}

func parseProcess(input string) ([]string, bool) {
	fields := strings.Fields(input)
	if len(fields) == 0 || fields[0] != processCommand {
		return nil, false
	}
	return fields[1:], true
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTurns())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Chat with multiple PDFs")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	chat := chatBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + summary + "\n" + chat + "\n" + input + "\n" + status
}

func (m Model) renderTurns() string {
	if len(m.turns) == 0 {
		return "No messages yet."
	}
	width := max(10, m.viewport.Width-4)
	var sb strings.Builder
	for i, turn := range m.turns {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		style, label := assistantStyle, "Assistant"
		if turn.Role == models.RoleUser {
			style, label = userStyle, "You"
		}
		sb.WriteString(labelStyle.Render(label) + "\n")
		sb.WriteString(style.Width(width).Render(turn.Content))
	}
	return sb.String()
}

var (
	chatBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	labelStyle     = lipgloss.NewStyle().Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)
