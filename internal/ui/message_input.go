package ui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/corpeningc/rpdflow/internal/errors"
)

type MessageInputModel struct {
	title     string
	textInput textinput.Model
	message   string
	cancelled bool
	hint      string
}

func NewMessageInputModel(title, placeholder string) MessageInputModel {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60

	return MessageInputModel{
		title:     title,
		textInput: ti,
	}
}

func (m MessageInputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m MessageInputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit

		case "enter":
			message := strings.TrimSpace(m.textInput.Value())
			if message == "" {
				m.hint = "The commit message cannot be empty."
				return m, nil
			}
			m.message = message
			return m, tea.Quit
		}
	}

	m.hint = ""
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m MessageInputModel) View() string {
	if m.message != "" || m.cancelled {
		return ""
	}

	sections := []string{
		titleStyle.Render(m.title),
		"",
		m.textInput.View(),
		"",
	}
	if m.hint != "" {
		sections = append(sections, errorStyle.Render(m.hint))
	}
	sections = append(sections, helpStyle.Render("enter: accept | esc: cancel"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// Message is the accepted text, or "" when the input was cancelled.
func (m MessageInputModel) Message() string {
	return m.message
}

// ReadMessage prompts for a single line commit message.
func ReadMessage(ctx context.Context, title string) (string, error) {
	p := tea.NewProgram(NewMessageInputModel(title, "Enter commit message..."), tea.WithContext(ctx))
	model, err := p.Run()
	if err != nil {
		return "", err
	}

	final, ok := model.(MessageInputModel)
	if !ok || final.cancelled || final.message == "" {
		return "", errors.Validationf("a commit message is required")
	}
	return final.message, nil
}
