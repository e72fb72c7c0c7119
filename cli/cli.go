// cli/cli.go
// Package cli provides the interactive terminal chat for examrag.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mwiater/examrag/internal/chain"
	"github.com/mwiater/examrag/internal/ingest"
	"github.com/mwiater/examrag/internal/logging"
	"github.com/mwiater/examrag/internal/transcript"
)

// Session is the conversation the terminal drives.
type Session interface {
	Ask(ctx context.Context, query string) *chain.Run
	Reset() string
	ChatID() string
	Transcript() []transcript.Message
	Feedback(index int, value string) bool
}

// Library is the document management surface shown in the documents view.
type Library interface {
	ListDocuments(ctx context.Context) []string
	Stats(ctx context.Context) ingest.Stats
	DeleteDocument(ctx context.Context, filename string) ingest.DeleteResult
}

// Info is shown in the chat header.
type Info struct {
	Provider string
	Model    string
	Search   string
	Debug    bool
}

// viewState represents the current screen.
type viewState int

const (
	viewChat viewState = iota
	viewDocuments
)

// model is the Bubble Tea model for the chat.
type model struct {
	ctx     context.Context
	session Session
	library Library
	info    Info

	state     viewState
	isLoading bool
	err       error
	notice    string

	docList  list.Model
	textArea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	history     []transcript.Message
	pending     string
	responseBuf strings.Builder
	lastDone    answerDoneMsg
	stats       ingest.Stats

	width, height    int
	program          *tea.Program
	requestStartTime time.Time
}

func initialModel(ctx context.Context, sess Session, lib Library, info Info) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ta := textarea.New()
	ta.Placeholder = "Ask about JEE dates, syllabus, eligibility..."
	ta.Focus()
	ta.Prompt = "Ask: "
	ta.ShowLineNumbers = false
	ta.CharLimit = -1
	ta.SetHeight(1)
	ta.KeyMap.InsertNewline.SetEnabled(false)

	docs := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	docs.Title = "Documents"

	m := &model{
		ctx:      ctx,
		session:  sess,
		library:  lib,
		info:     info,
		state:    viewChat,
		spinner:  s,
		textArea: ta,
		docList:  docs,
		viewport: viewport.New(100, 5),
	}
	m.history = sess.Transcript()
	return m
}

// item is a document row in the documents view.
type item struct {
	title string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return "x to delete" }
func (i item) FilterValue() string { return i.title }

type fragmentMsg string

type answerDoneMsg struct {
	stage   chain.Stage
	sources []string
	err     error
}

type docsLoadedMsg struct {
	names []string
	stats ingest.Stats
}

type docDeletedMsg struct{ result ingest.DeleteResult }

type tickMsg time.Time

// askCmd consumes a run on a goroutine and forwards each fragment to the
// program.
func askCmd(ctx context.Context, p *tea.Program, sess Session, query string) tea.Cmd {
	return func() tea.Msg {
		go func() {
			run := sess.Ask(ctx, query)
			for fragment := range run.Fragments() {
				if p != nil {
					p.Send(fragmentMsg(fragment))
				}
			}
			done := answerDoneMsg{stage: run.Stage(), err: run.Err()}
			for _, src := range run.Sources() {
				done.sources = append(done.sources, src.Chunk.Metadata.Filename)
			}
			if p != nil {
				p.Send(done)
			}
		}()
		return nil
	}
}

func loadDocsCmd(ctx context.Context, lib Library) tea.Cmd {
	return func() tea.Msg {
		return docsLoadedMsg{names: lib.ListDocuments(ctx), stats: lib.Stats(ctx)}
	}
}

func deleteDocCmd(ctx context.Context, lib Library, name string) tea.Cmd {
	return func() tea.Msg {
		return docDeletedMsg{result: lib.DeleteDocument(ctx, name)}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the spinner and loads document stats for the header.
func (m *model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	if m.library != nil {
		cmds = append(cmds, loadDocsCmd(m.ctx, m.library))
	}
	return tea.Batch(cmds...)
}

// lastAssistant returns the transcript index of the newest assistant
// message, or -1.
func (m *model) lastAssistant() int {
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].Role == transcript.RoleAssistant {
			return i
		}
	}
	return -1
}

// Update is the central update function for the Bubble Tea model.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab":
			if m.isLoading {
				return m, nil
			}
			if m.state == viewChat && m.library != nil {
				m.state = viewDocuments
				return m, loadDocsCmd(m.ctx, m.library)
			}
			m.state = viewChat
			m.textArea.Focus()
			return m, nil
		case "ctrl+n":
			if m.state == viewChat && !m.isLoading {
				chatID := m.session.Reset()
				m.history = m.session.Transcript()
				m.lastDone = answerDoneMsg{}
				m.err = nil
				m.notice = "New chat " + chatID
				return m, nil
			}
		case "ctrl+u", "ctrl+x":
			if m.state == viewChat && !m.isLoading {
				value := "up"
				if msg.String() == "ctrl+x" {
					value = "down"
				}
				if idx := m.lastAssistant(); idx >= 0 && m.session.Feedback(idx, value) {
					m.history = m.session.Transcript()
					m.notice = "Feedback recorded: " + value
				}
				return m, nil
			}
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.docList.SetSize(msg.Width-2, msg.Height-4)
		m.textArea.SetWidth(msg.Width - 3)
		headerHeight := 3
		footerHeight := 4
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - headerHeight - footerHeight

	case fragmentMsg:
		m.responseBuf.WriteString(string(msg))
		m.viewport.GotoBottom()
		return m, nil

	case answerDoneMsg:
		m.lastDone = msg
		m.responseBuf.Reset()
		m.pending = ""
		m.history = m.session.Transcript()
		m.isLoading = false
		if msg.err != nil {
			logging.LogEvent("chat run ended in %s: %v", msg.stage, msg.err)
		}
		m.textArea.Focus()
		m.viewport.GotoBottom()
		return m, nil

	case docsLoadedMsg:
		items := make([]list.Item, len(msg.names))
		for i, name := range msg.names {
			items[i] = item{title: name}
		}
		m.docList.SetItems(items)
		m.stats = msg.stats
		m.docList.Title = fmt.Sprintf("Documents (%d, %d chunks)", msg.stats.TotalDocuments, msg.stats.TotalChunks)
		return m, nil

	case docDeletedMsg:
		m.notice = msg.result.Message
		return m, loadDocsCmd(m.ctx, m.library)

	case tickMsg:
		if m.isLoading {
			return m, tickCmd()
		}
		return m, nil
	}

	switch m.state {
	case viewDocuments:
		if key, ok := msg.(tea.KeyMsg); ok && key.String() == "x" && m.docList.FilterState() != list.Filtering {
			if selected, ok := m.docList.SelectedItem().(item); ok {
				return m, deleteDocCmd(m.ctx, m.library, selected.title)
			}
		}
		m.docList, cmd = m.docList.Update(msg)
		cmds = append(cmds, cmd)

	case viewChat:
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

		if !m.isLoading {
			m.textArea, cmd = m.textArea.Update(msg)
			cmds = append(cmds, cmd)
		}

		if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" && !m.isLoading {
			input := strings.TrimSpace(m.textArea.Value())
			if input != "" {
				m.requestStartTime = time.Now()
				m.pending = input
				m.textArea.Reset()
				m.isLoading = true
				m.err = nil
				m.notice = ""
				cmds = append(cmds, m.spinner.Tick, askCmd(m.ctx, m.program, m.session, input), tickCmd())
			}
		}
	}

	if m.isLoading {
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View renders the current screen.
func (m *model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	if m.err != nil {
		errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(1)
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}

	switch m.state {
	case viewDocuments:
		view := m.docList.View()
		if m.notice != "" {
			view += "\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Render(m.notice)
		}
		return lipgloss.NewStyle().Margin(1, 2).Render(view + "\n (tab to return to chat)")
	default:
		return m.chatView()
	}
}

func (m *model) chatView() string {
	var builder strings.Builder

	labelStyle := lipgloss.NewStyle().Background(lipgloss.Color("0")).Foreground(lipgloss.Color("255")).Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230")).Padding(0, 1).MarginLeft(1)
	chatStyle := lipgloss.NewStyle().Background(lipgloss.Color("255")).Foreground(lipgloss.Color("0")).Padding(0, 1).MarginLeft(1)

	status := lipgloss.JoinHorizontal(lipgloss.Top,
		labelStyle.Render("JEE Assistant:"),
		headerStyle.Render("Provider: "+m.info.Provider),
		headerStyle.Render("Model: "+m.info.Model),
		headerStyle.Render("Search: "+m.info.Search),
		headerStyle.Render(fmt.Sprintf("Docs: %d", m.stats.TotalDocuments)),
		chatStyle.Render("Chat: "+shortID(m.session.ChatID())),
	)
	help := lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Render(" (enter send, ctrl+n new chat, ctrl+u/ctrl+x rate, tab documents, esc quit)")
	builder.WriteString(status + "\n" + help + "\n\n")

	var historyBuilder strings.Builder
	userStyle := lipgloss.NewStyle().Bold(true)
	assistantStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))
	wrap := func(role, content string) string {
		body := lipgloss.NewStyle().Width(m.width - lipgloss.Width(role) - 2).Render(content)
		return lipgloss.JoinHorizontal(lipgloss.Top, role, body)
	}

	for _, msg := range m.history {
		switch msg.Role {
		case transcript.RoleAssistant:
			role := assistantStyle.Render("Assistant: ")
			if msg.Feedback != "" {
				role = assistantStyle.Render(fmt.Sprintf("Assistant (%s): ", msg.Feedback))
			}
			historyBuilder.WriteString(wrap(role, msg.Content) + "\n")
		case transcript.RoleUser:
			historyBuilder.WriteString(wrap(userStyle.Render("You: "), msg.Content) + "\n")
		}
	}
	if m.pending != "" {
		historyBuilder.WriteString(wrap(userStyle.Render("You: "), m.pending) + "\n")
	}
	if m.responseBuf.Len() > 0 {
		historyBuilder.WriteString(wrap(assistantStyle.Render("Assistant: "), m.responseBuf.String()))
	}

	m.viewport.SetContent(historyBuilder.String())
	builder.WriteString(m.viewport.View())

	if m.isLoading {
		timer := fmt.Sprintf("%.1f", time.Since(m.requestStartTime).Seconds())
		builder.WriteString("\n" + m.spinner.View() + fmt.Sprintf(" Assistant is thinking... %ss", timer))
	} else {
		builder.WriteString("\n" + m.textArea.View())
	}

	if m.notice != "" {
		builder.WriteString("\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Render(m.notice))
	}
	if m.info.Debug && (m.lastDone.stage == chain.Done || m.lastDone.stage == chain.Errored) {
		builder.WriteString("\n" + formatDone(m.lastDone))
	}

	return builder.String()
}

// formatDone summarizes the last run for debug mode.
func formatDone(done answerDoneMsg) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	sources := "none"
	if len(done.sources) > 0 {
		sources = strings.Join(done.sources, ", ")
	}
	line := fmt.Sprintf("  >>> [Stage: %s] [Sources: %s]", done.stage, sources)
	if done.err != nil {
		line += fmt.Sprintf(" [Error: %v]", done.err)
	}
	return style.Render(line)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// StartGUI runs the interactive chat until the user quits or ctx ends.
func StartGUI(ctx context.Context, sess Session, lib Library, info Info) error {
	if sess == nil {
		return fmt.Errorf("start chat: no session")
	}
	m := initialModel(ctx, sess, lib, info)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	m.program = p

	_, err := p.Run()
	return err
}
