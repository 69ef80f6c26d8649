package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	logoStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	itemStyle         = lipgloss.NewStyle().PaddingLeft(2)
	selectedItemStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("12")).Bold(true)
	descriptionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

const logo = `
 _            _    _                         _
| |_ __ _ ___| | _| |__   ___   __ _ _ __ __| |
| __/ _` + "`" + ` / __| |/ / '_ \ / _ \ / _` + "`" + ` | '__/ _` + "`" + ` |
| || (_| \__ \   <| |_) | (_) | (_| | | | (_| |
 \__\__,_|___/_|\_\_.__/ \___/ \__,_|_|  \__,_|
`

// MenuItem is one command offered by the menu.
type MenuItem struct {
	Name        string
	Description string
}

// MenuModel lets the user pick a command when taskboard runs without one.
type MenuModel struct {
	items    []MenuItem
	cursor   int
	selected string
	quitting bool
}

func NewMenuModel(items []MenuItem) MenuModel {
	return MenuModel{items: items}
}

func (m MenuModel) Init() tea.Cmd {
	return nil
}

func (m MenuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch k := key.String(); k {
	case "ctrl+c", "q", "esc":
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		m.cursor = max(m.cursor-1, 0)

	case "down", "j":
		m.cursor = max(min(m.cursor+1, len(m.items)-1), 0)

	case "enter":
		if len(m.items) > 0 {
			m.selected = m.items[m.cursor].Name
			return m, tea.Quit
		}

	default:
		// Digits pick an item directly.
		if len(k) == 1 && k[0] >= '1' && k[0] <= '9' {
			if i := int(k[0] - '1'); i < len(m.items) {
				m.cursor = i
				m.selected = m.items[i].Name
				return m, tea.Quit
			}
		}
	}

	return m, nil
}

func (m MenuModel) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder

	s.WriteString(logoStyle.Render(logo))
	s.WriteString("\n\n")

	nameWidth := 0
	for _, item := range m.items {
		nameWidth = max(nameWidth, len(item.Name))
	}

	for i, item := range m.items {
		line := fmt.Sprintf("%d %-*s", i+1, nameWidth, item.Name)
		if m.cursor == i {
			s.WriteString(selectedItemStyle.Render("> " + line))
		} else {
			s.WriteString(itemStyle.Render("  " + line))
		}
		s.WriteString("  " + descriptionStyle.Render(item.Description))
		s.WriteString("\n")
	}

	s.WriteString("\n(j/k or arrows to move, enter or a number to select, q to quit)\n")

	return s.String()
}

func (m MenuModel) Selected() string {
	return m.selected
}

// RunMenu shows the menu and returns the chosen item's name, or "" when the
// user quits.
func RunMenu(items []MenuItem) (string, error) {
	p := tea.NewProgram(NewMenuModel(items))
	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}
	return finalModel.(MenuModel).Selected(), nil
}
