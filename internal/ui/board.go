package ui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ldi/taskboard/internal/board"
	"github.com/ldi/taskboard/internal/ui/components"
	"github.com/ldi/taskboard/pkg/models"
)

// noticeTTL is how long a notification stays on the status line.
const noticeTTL = 3 * time.Second

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Padding(0, 1)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	selectedCardStyle = cardStyle.
				BorderForeground(lipgloss.Color("12"))

	draggingCardStyle = cardStyle.
				Border(lipgloss.DoubleBorder()).
				BorderForeground(lipgloss.Color("86"))

	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	tagStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	overdueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	pinStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	emptyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true).Padding(0, 1)

	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Notice is a notification raised by the board.
type Notice struct {
	Level board.Level
	Text  string
}

// Notifier forwards board notifications to the terminal program. Sends never
// block; a notice is dropped when the buffer is full.
type Notifier chan Notice

func NewNotifier(size int) Notifier {
	return make(Notifier, size)
}

func (n Notifier) Notify(level board.Level, message string) {
	select {
	case n <- Notice{Level: level, Text: message}:
	default:
	}
}

type noticeMsg Notice

type expireNoticeMsg struct{ seq int }

type refreshTickMsg struct{}

// opDoneMsg reports the end of a store request.
type opDoneMsg struct{ err error }

// BoardModel renders a board.Board as three columns and maps keys onto board
// operations.
type BoardModel struct {
	ctx      context.Context
	board    *board.Board
	notices  Notifier
	interval time.Duration

	column int
	rows   map[models.Priority]int

	form *taskForm

	notice       *Notice
	noticeSeq    int
	activity     *components.Activity
	showActivity bool
	err          error

	width    int
	height   int
	quitting bool
}

// NewBoardModel builds the model. notices should be the notifier the board
// was created with. A positive interval reloads the board periodically.
func NewBoardModel(ctx context.Context, b *board.Board, notices Notifier, interval time.Duration) *BoardModel {
	return &BoardModel{
		ctx:      ctx,
		board:    b,
		notices:  notices,
		interval: interval,
		rows:     make(map[models.Priority]int),
		activity: components.NewActivity(96, 8),
		width:    96,
	}
}

func (m *BoardModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.refresh(), m.pollNotices()}
	if m.interval > 0 {
		cmds = append(cmds, m.tick())
	}
	return tea.Batch(cmds...)
}

func (m *BoardModel) pollNotices() tea.Cmd {
	if m.notices == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-m.notices
		if !ok {
			return nil
		}
		return noticeMsg(n)
	}
}

func (m *BoardModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return refreshTickMsg{} })
}

func (m *BoardModel) refresh() tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: m.board.Refresh(m.ctx)}
	}
}

func (m *BoardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.activity.Width = msg.Width

	case tea.KeyMsg:
		if m.form != nil {
			return m, m.handleForm(msg)
		}
		return m, m.handleKey(msg)

	case noticeMsg:
		n := Notice(msg)
		m.notice = &n
		m.activity.Add(components.Entry{Text: n.Text, Failed: n.Level == board.LevelError})
		m.noticeSeq++
		seq := m.noticeSeq
		return m, tea.Batch(
			m.pollNotices(),
			tea.Tick(noticeTTL, func(time.Time) tea.Msg { return expireNoticeMsg{seq: seq} }),
		)

	case expireNoticeMsg:
		if msg.seq == m.noticeSeq {
			m.notice = nil
		}

	case refreshTickMsg:
		return m, tea.Batch(m.refresh(), m.tick())

	case opDoneMsg:
		m.err = msg.err
		m.clamp()
	}

	return m, nil
}

func (m *BoardModel) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return tea.Quit

	case "left", "h":
		if id, ok := m.board.Dragging(); ok {
			return m.moveCard(id, -1)
		}
		m.column = max(m.column-1, 0)

	case "right", "l":
		if id, ok := m.board.Dragging(); ok {
			return m.moveCard(id, 1)
		}
		m.column = min(m.column+1, len(models.Priorities())-1)

	case "up", "k":
		m.rows[m.priority()] = max(m.rows[m.priority()]-1, 0)

	case "down", "j":
		m.rows[m.priority()]++
		m.clamp()

	case "shift+up", "K":
		return m.shiftCard(-1)

	case "shift+down", "J":
		return m.shiftCard(1)

	case "<":
		if t := m.selected(); t != nil {
			return m.moveCard(t.ID, -1)
		}

	case ">":
		if t := m.selected(); t != nil {
			return m.moveCard(t.ID, 1)
		}

	case " ":
		if _, ok := m.board.Dragging(); ok {
			m.board.CancelDrag()
			return nil
		}
		if t := m.selected(); t != nil {
			m.err = m.board.BeginDrag(t.ID)
		}

	case "esc":
		m.board.CancelDrag()

	case "p":
		if t := m.selected(); t != nil {
			id := t.ID
			return func() tea.Msg {
				_, err := m.board.TogglePin(m.ctx, id)
				return opDoneMsg{err: err}
			}
		}

	case "d", "x":
		if t := m.selected(); t != nil {
			id := t.ID
			return func() tea.Msg {
				return opDoneMsg{err: m.board.Delete(m.ctx, id)}
			}
		}

	case "a":
		m.form = newCreateForm(m.priority())
		m.err = nil

	case "e", "enter":
		if t := m.selected(); t != nil {
			m.form = newEditForm(t)
			m.err = nil
		}

	case "n":
		m.showActivity = !m.showActivity

	case "r":
		return m.refresh()
	}
	return nil
}

// handleForm drives the add and edit dialog. Enter in the tag field adds the
// typed tag; anywhere else it submits.
func (m *BoardModel) handleForm(msg tea.KeyMsg) tea.Cmd {
	f := m.form
	switch msg.Type {
	case tea.KeyCtrlC:
		m.quitting = true
		return tea.Quit
	case tea.KeyEsc:
		m.form = nil
		m.err = nil
	case tea.KeyTab, tea.KeyDown:
		return f.next(1)
	case tea.KeyShiftTab, tea.KeyUp:
		return f.next(-1)
	case tea.KeyEnter:
		if f.focus == fieldTags && f.addPendingTag() {
			return nil
		}
		f.addPendingTag()
		return m.submit(f)
	default:
		return f.update(msg)
	}
	return nil
}

// submit sends the form to the store. Values the store would reject keep the
// form open with the error shown.
func (m *BoardModel) submit(f *taskForm) tea.Cmd {
	if f.editing() {
		patch, err := f.patch()
		if err != nil {
			m.err = err
			return nil
		}
		m.form = nil
		m.err = nil
		return func() tea.Msg {
			_, err := m.board.Update(m.ctx, f.id, patch)
			return opDoneMsg{err: err}
		}
	}

	in, err := f.input()
	if err != nil {
		m.err = err
		return nil
	}
	m.form = nil
	m.err = nil
	return func() tea.Msg {
		_, err := m.board.Create(m.ctx, in)
		return opDoneMsg{err: err}
	}
}

// moveCard moves a card to the neighbouring column. The board changes at once
// and the store is asked in the background.
func (m *BoardModel) moveCard(id int64, dir int) tea.Cmd {
	t, ok := m.board.Task(id)
	if !ok {
		return nil
	}
	priorities := models.Priorities()
	target := slices.Index(priorities, t.Priority) + dir
	if target < 0 || target >= len(priorities) {
		return nil
	}
	to := priorities[target]

	mv, err := m.board.ApplyMove(id, to)
	if err != nil {
		m.err = err
		return nil
	}
	m.column = target
	for i, t := range m.board.Column(to) {
		if t.ID == id {
			m.rows[to] = i
		}
	}
	return func() tea.Msg {
		return opDoneMsg{err: m.board.ConfirmMove(m.ctx, mv)}
	}
}

func (m *BoardModel) shiftCard(delta int) tea.Cmd {
	t := m.selected()
	if t == nil {
		return nil
	}
	if err := m.board.Shift(t.ID, delta); err != nil {
		m.err = err
		return nil
	}
	p := m.priority()
	for i, c := range m.board.Column(p) {
		if c.ID == t.ID {
			m.rows[p] = i
		}
	}
	return nil
}

func (m *BoardModel) priority() models.Priority {
	return models.Priorities()[m.column]
}

func (m *BoardModel) selected() *models.Task {
	col := m.board.Column(m.priority())
	row := m.rows[m.priority()]
	if row < 0 || row >= len(col) {
		return nil
	}
	return col[row]
}

// clamp keeps every column cursor on an existing card.
func (m *BoardModel) clamp() {
	for p, n := range m.board.Counts() {
		m.rows[p] = max(min(m.rows[p], n-1), 0)
	}
}

func (m *BoardModel) View() string {
	if m.quitting {
		return ""
	}

	header := titleStyle.Render("Taskboard")
	if m.board.Refreshing() {
		header += pendingStyle.Render(" loading...")
	}
	if !m.board.Loaded() {
		return header + "\n\n" + m.renderStatus() + "\n"
	}

	colWidth := max(m.width/len(models.Priorities()), 16)
	counts := m.board.Counts()
	now := m.board.Now()

	var cols []string
	for i, p := range models.Priorities() {
		cols = append(cols, m.renderColumn(p, counts[p], i == m.column, colWidth, now))
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, cols...)
	if m.form != nil {
		body += "\n" + m.form.view(m.width)
	}
	if m.showActivity {
		body += "\n" + m.activity.View()
	}
	return header + "\n" + body + "\n" + m.renderStatus() + "\n" + m.renderHelp()
}

func (m *BoardModel) renderColumn(p models.Priority, count int, focused bool, width int, now time.Time) string {
	info := p.Info()
	headStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(info.Color)).
		Padding(0, 1)
	if focused {
		headStyle = headStyle.Underline(true)
	}

	var b strings.Builder
	b.WriteString(headStyle.Render(fmt.Sprintf("%s (%d)", info.Title, count)))
	b.WriteString("\n")

	col := m.board.Column(p)
	if len(col) == 0 {
		b.WriteString(emptyStyle.Render("no tasks"))
	}
	for i, t := range col {
		b.WriteString(m.renderCard(t, focused && i == m.rows[p], width-2, now))
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().Width(width).MaxWidth(width).Render(b.String())
}

func (m *BoardModel) renderCard(t *models.Task, selected bool, width int, now time.Time) string {
	state := m.board.State(t.ID)

	style := cardStyle
	switch {
	case state == board.StateDragging:
		style = draggingCardStyle
	case selected:
		style = selectedCardStyle
	}

	var lines []string
	title := t.Title
	if t.Pinned {
		title = pinStyle.Render("◆ ") + title
	}
	lines = append(lines, title)

	var meta []string
	if t.DueDate != nil {
		if label := board.DueLabel(*t.DueDate, now); label != "" {
			if board.Overdue(*t.DueDate, now) {
				meta = append(meta, overdueStyle.Render(label))
			} else {
				meta = append(meta, dueStyle.Render(label))
			}
		}
	}
	for _, tag := range t.Tags {
		meta = append(meta, tagStyle.Render("#"+tag))
	}
	if len(meta) > 0 {
		lines = append(lines, strings.Join(meta, " "))
	}
	if state == board.StatePendingMove {
		lines = append(lines, pendingStyle.Render("saving..."))
	}

	// Width includes padding but not the border.
	return style.Width(max(width-2, 4)).Render(strings.Join(lines, "\n"))
}

func (m *BoardModel) renderStatus() string {
	if m.notice != nil {
		if m.notice.Level == board.LevelError {
			return errorStyle.Width(m.width).Render(m.notice.Text)
		}
		return successStyle.Width(m.width).Render(m.notice.Text)
	}
	if m.err != nil && !errors.Is(m.err, context.Canceled) {
		return errorStyle.Width(m.width).Render(m.err.Error())
	}
	return ""
}

func (m *BoardModel) renderHelp() string {
	if m.form != nil {
		return helpStyle.Width(m.width).Render("tab next field • enter in tags adds a tag • enter saves • backspace in empty tags drops one • esc cancel")
	}
	return helpStyle.Width(m.width).Render("h/l column • j/k card • J/K reorder • space grab • </> move • a add • e edit • p pin • d delete • n activity • r reload • q quit")
}

// RunBoard runs the terminal board until the user quits.
func RunBoard(ctx context.Context, b *board.Board, notices Notifier, interval time.Duration) error {
	m := NewBoardModel(ctx, b, notices, interval)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
