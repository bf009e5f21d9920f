// Package statsui provides the Bubble Tea browser over stored sessions.
package statsui

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/verte-zerg/keyprofile/internal/model"
	"github.com/verte-zerg/keyprofile/internal/profile"
	"github.com/verte-zerg/keyprofile/internal/stats"
	"github.com/verte-zerg/keyprofile/internal/store"
)

const (
	tabOverview = iota
	tabSessions
	tabHistograms
)

const (
	plotHeight = 10
)

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Model implements the Bubble Tea stats UI.
type Model struct {
	store *store.Store
	cfg   model.StatsConfig
	now   func() time.Time

	report stats.Report
	errMsg string

	tabs      []string
	activeTab int
	viewports []viewport.Model

	sessionTable  table.Model
	sessionIDs    []int64
	sessionLayout tableLayout

	selectedID int64
	selected   *profile.Profile
	selectErr  string

	width  int
	height int

	filterMode   bool
	filterInputs []textinput.Model
	filterIndex  int
	filterError  string
}

type tableLayout struct {
	width    int
	height   int
	rowCount int
}

// NewModel constructs a stats UI model.
func NewModel(st *store.Store, cfg model.StatsConfig) *Model {
	m := &Model{
		store: st,
		cfg:   cfg,
		now:   time.Now,
		tabs:  []string{"Overview", "Sessions", "Histograms"},
	}
	m.initInputs()
	m.sessionTable = newSessionTable()
	m.initViewports()
	m.refreshReport()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderTabContents()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || (!m.filterMode && msg.String() == "q") {
			return m, tea.Quit
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "=":
			m.cfg.CurveWindow = nextCurveWindow(m.cfg.CurveWindow)
			m.refreshReport()
			return m, nil
		case "-":
			m.cfg.CurveWindow = prevCurveWindow(m.cfg.CurveWindow)
			m.refreshReport()
			return m, nil
		case "/":
			return m.startFilter()
		case "enter":
			if m.activeTab == tabSessions {
				m.selectCurrentRow()
				m.activeTab = tabHistograms
				m.sessionTable.Blur()
				return m, tea.ClearScreen
			}
			return m, nil
		case "g", "home":
			if m.activeTab == tabSessions {
				m.sessionTable.GotoTop()
			} else {
				m.viewports[m.activeTab].GotoTop()
			}
			return m, nil
		case "G", "end":
			if m.activeTab == tabSessions {
				m.sessionTable.GotoBottom()
			} else {
				m.viewports[m.activeTab].GotoBottom()
			}
			return m, nil
		default:
			if m.activeTab == tabSessions {
				var cmd tea.Cmd
				m.sessionTable, cmd = m.sessionTable.Update(msg)
				return m, cmd
			}
			var cmd tea.Cmd
			m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(bodyHeight), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) initViewports() {
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
}

func (m *Model) initInputs() {
	m.filterInputs = []textinput.Model{
		newFilterInput("Source: "),
		newFilterInput("Since (YYYY-MM-DD): "),
		newFilterInput("Last: "),
		newFilterInput("Curve window: "),
	}
	m.setInputsFromConfig()
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := lipgloss.Height(activeNavStyle.Render("X"))
	if tabsHeight < 1 {
		tabsHeight = 1
	}
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if !m.filterMode && m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = m.height - headerHeight - footerHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	return headerHeight, bodyHeight, footerHeight
}

func newFilterInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 0
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func (m *Model) setInputsFromConfig() {
	m.filterInputs[0].SetValue(strings.TrimSpace(m.cfg.Source))
	if m.cfg.Since != nil {
		m.filterInputs[1].SetValue(m.cfg.Since.Format("2006-01-02"))
	} else {
		m.filterInputs[1].SetValue("")
	}
	if m.cfg.Last > 0 {
		m.filterInputs[2].SetValue(strconv.Itoa(m.cfg.Last))
	} else {
		m.filterInputs[2].SetValue("")
	}
	m.filterInputs[3].SetValue(strconv.Itoa(m.cfg.CurveWindow))
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, vpHeight, _ := m.layoutHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = vpHeight
	}
	m.setSessionTableSize(m.width, vpHeight)
	for i := range m.filterInputs {
		promptWidth := lipgloss.Width(m.filterInputs[i].Prompt)
		m.filterInputs[i].Width = maxInt(10, m.width-promptWidth-2)
	}
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	next := m.activeTab + delta
	if next < 0 {
		next = count - 1
	}
	if next >= count {
		next = 0
	}
	m.activeTab = next
	if m.activeTab == tabSessions {
		m.sessionTable.Focus()
	} else {
		m.sessionTable.Blur()
	}
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	tabs := padLines(m.renderTabs(), m.width)
	filters := padLines(m.renderFilterSummary(), m.width)
	return tabs + "\n" + filters
}

func (m *Model) renderFilterSummary() string {
	source := m.cfg.Source
	if source == "" {
		source = "any"
	}
	since := "any"
	if m.cfg.Since != nil {
		since = m.cfg.Since.Format("2006-01-02")
	}
	last := "all"
	if m.cfg.Last > 0 {
		last = strconv.Itoa(m.cfg.Last)
	}
	summary := fmt.Sprintf("Settings: source=%s  since=%s  last=%s  window=%d", source, since, last, m.cfg.CurveWindow)
	return headerStyle.Render(truncateLine(summary, m.width))
}

func (m *Model) renderHelp() string {
	help := "Nav: left/right  Scroll: up/down/pgup/pgdn  Window: -/=  Settings: /  Quit: q"
	if m.activeTab == tabSessions {
		help = "Nav: left/right  Select: up/down  Histograms: enter  Window: -/=  Settings: /  Quit: q"
	}
	return headerStyle.Render(help)
}

func (m *Model) renderFooter() string {
	if m.filterMode {
		return headerStyle.Render("tab/shift+tab: next field  enter: apply  esc: cancel")
	}
	if m.errMsg != "" {
		return m.renderHelp() + "\n" + errorStyle.Render(m.errMsg)
	}
	return m.renderHelp()
}

func (m *Model) renderFilterForm() string {
	lines := []string{"Settings (enter to apply, esc to cancel)"}
	for _, input := range m.filterInputs {
		lines = append(lines, input.View())
	}
	if m.filterError != "" {
		lines = append(lines, errorStyle.Render(m.filterError))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderBody(height int) string {
	if m.filterMode {
		return fitLines(m.renderFilterForm(), m.width, height)
	}
	if m.activeTab == tabSessions {
		if len(m.report.Sessions) == 0 {
			return fitLines("No sessions found.", m.width, height)
		}
		return fitLines(tableMutedStyle.Render(m.sessionTable.View()), m.width, height)
	}
	return fitLines(m.viewports[m.activeTab].View(), m.width, height)
}

func (m *Model) refreshReport() {
	report, err := stats.BuildReport(context.Background(), m.store, m.cfg)
	if err != nil {
		m.errMsg = err.Error()
		for i := range m.viewports {
			m.viewports[i].SetContent("Failed to load stats.")
		}
		return
	}
	m.errMsg = ""
	m.report = report
	m.applySessionRows()
	if m.selectedID == 0 && len(report.Sessions) > 0 {
		m.selectSession(report.Sessions[len(report.Sessions)-1].SessionID)
	}
	m.renderTabContents()
}

func (m *Model) renderTabContents() {
	if m.errMsg != "" {
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	m.viewports[tabOverview].SetContent(renderOverview(m.report, m.cfg.CurveWindow, width))
	m.viewports[tabHistograms].SetContent(renderSession(m.selected, m.selectErr, width))
}

func (m *Model) selectCurrentRow() {
	idx := m.sessionTable.Cursor()
	if idx < 0 || idx >= len(m.sessionIDs) {
		return
	}
	m.selectSession(m.sessionIDs[idx])
	m.renderTabContents()
}

func (m *Model) selectSession(id int64) {
	m.selectedID = id
	m.selected = nil
	m.selectErr = ""
	rec, err := m.store.GetSession(context.Background(), id)
	if err != nil {
		m.selectErr = err.Error()
		return
	}
	p := profile.FromRecord(rec)
	m.selected = &p
}

func renderOverview(report stats.Report, window, width int) string {
	if len(report.Sessions) == 0 {
		return "No sessions found."
	}
	cards := renderSummaryCards(report.Totals, width)
	curves := renderCurves(report.Window, window, width)
	return strings.TrimRight(cards+"\n\n"+curves, "\n")
}

func renderSummaryCards(t stats.Totals, width int) string {
	pp := t.Channels[model.PressPress]
	pr := t.Channels[model.PressRelease]
	cards := []string{
		metricCard("Sessions", strconv.Itoa(t.Sessions)),
		metricCard("Key presses", humanize.Comma(int64(t.PressEvents))),
		metricCard("Time typed", formatDuration(t.DurationMs)),
		metricCard("Avg press-press", fmt.Sprintf("%.1f ms", pp.MeanMs)),
		metricCard("Avg hold", fmt.Sprintf("%.1f ms", pr.MeanMs)),
	}
	if width < 80 {
		return strings.Join(cards, "\n")
	}
	row1 := lipgloss.JoinHorizontal(lipgloss.Top, cards[0], cards[1], cards[2])
	row2 := lipgloss.JoinHorizontal(lipgloss.Top, cards[3], cards[4])
	return lipgloss.JoinVertical(lipgloss.Left, row1, row2)
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func renderCurves(sessions []model.SessionAggregate, window, width int) string {
	var buf bytes.Buffer
	if err := stats.RenderCurvesWithSize(&buf, sessions, window, width, plotHeight, true); err != nil {
		return fmt.Sprintf("Failed to render curves: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

// renderSession shows metrics, histograms and bin tables of one session.
func renderSession(p *profile.Profile, errMsg string, width int) string {
	if errMsg != "" {
		return fmt.Sprintf("Failed to load session: %s", errMsg)
	}
	if p == nil {
		return "No session selected. Pick one on the Sessions tab."
	}
	var buf bytes.Buffer
	res := p.Result
	fmt.Fprintf(&buf, "Session %s  %s  %d presses\n", res.StartedAt.Local().Format("2006-01-02 15:04"),
		formatDuration(res.DurationMs()), res.PressEvents)
	if res.Text != "" {
		fmt.Fprintf(&buf, "%s\n", truncateLine(res.Text, width))
	}
	buf.WriteString("\n")
	if err := stats.RenderMetrics(&buf, p.Metrics); err != nil {
		return fmt.Sprintf("Failed to render metrics: %v", err)
	}
	if err := stats.RenderHistograms(&buf, p.Document.Partitions, width, plotHeight/2, true); err != nil {
		return fmt.Sprintf("Failed to render histograms: %v", err)
	}
	for _, part := range p.Document.Partitions {
		if err := stats.RenderPartitionTable(&buf, part, p.ScaleFactor); err != nil {
			return fmt.Sprintf("Failed to render bins: %v", err)
		}
	}
	return strings.TrimRight(buf.String(), "\n")
}

func newSessionTable() table.Model {
	t := table.New(
		table.WithColumns(sessionColumns()),
		table.WithHeight(1),
		table.WithFocused(false),
	)
	t.SetStyles(sessionTableStyles())
	return t
}

func sessionColumns() []table.Column {
	return []table.Column{
		{Title: "ID", Width: 5},
		{Title: "Ended", Width: 16},
		{Title: "Source", Width: 9},
		{Title: "Chars", Width: 6},
		{Title: "Presses", Width: 8},
		{Title: "Duration", Width: 9},
		{Title: "pp (ms)", Width: 8},
		{Title: "Hold (ms)", Width: 9},
	}
}

// buildSessionRows lists sessions newest first and returns their ids in
// row order.
func buildSessionRows(sessions []model.SessionAggregate, now time.Time) ([]table.Row, []int64) {
	rows := make([]table.Row, 0, len(sessions))
	ids := make([]int64, 0, len(sessions))
	for i := len(sessions) - 1; i >= 0; i-- {
		s := sessions[i]
		rows = append(rows, table.Row{
			strconv.FormatInt(s.SessionID, 10),
			humanize.RelTime(s.EndedAt, now, "ago", "from now"),
			s.Source,
			strconv.Itoa(s.TextLength),
			humanize.Comma(int64(s.PressEvents)),
			formatDuration(s.DurationMs),
			fmt.Sprintf("%.1f", s.Summaries[model.PressPress].MeanMs),
			fmt.Sprintf("%.1f", s.Summaries[model.PressRelease].MeanMs),
		})
		ids = append(ids, s.SessionID)
	}
	return rows, ids
}

func (m *Model) applySessionRows() {
	rows, ids := buildSessionRows(m.report.Sessions, m.now())
	m.sessionTable.SetRows(rows)
	m.sessionIDs = ids
	if m.sessionTable.Cursor() >= len(rows) {
		m.sessionTable.SetCursor(maxInt(0, len(rows)-1))
	}
	m.sessionLayout.rowCount = len(rows)
	if m.width > 0 {
		_, bodyHeight, _ := m.layoutHeights()
		m.sessionLayout.width = 0
		m.setSessionTableSize(m.width, bodyHeight)
	}
}

func (m *Model) setSessionTableSize(width, height int) {
	if m.sessionLayout.width == width && m.sessionLayout.height == height {
		return
	}
	m.sessionLayout.width = width
	m.sessionLayout.height = height
	m.sessionTable.SetWidth(width)
	// One line for the header row and one for its border.
	m.sessionTable.SetHeight(maxInt(1, height-2))
}

func sessionTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func (m *Model) startFilter() (tea.Model, tea.Cmd) {
	m.filterMode = true
	m.filterError = ""
	m.setInputsFromConfig()
	return m, m.setFilterIndex(0)
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		m.filterError = ""
		return m, nil
	case tea.KeyEnter:
		if err := m.applyFilter(); err != nil {
			m.filterError = err.Error()
			return m, nil
		}
		m.filterMode = false
		m.filterError = ""
		m.refreshReport()
		m.updateLayout()
		return m, nil
	case tea.KeyTab:
		return m, m.setFilterIndex(m.filterIndex + 1)
	case tea.KeyShiftTab:
		return m, m.setFilterIndex(m.filterIndex - 1)
	}
	var cmd tea.Cmd
	m.filterInputs[m.filterIndex], cmd = m.filterInputs[m.filterIndex].Update(msg)
	return m, cmd
}

func (m *Model) setFilterIndex(idx int) tea.Cmd {
	count := len(m.filterInputs)
	if idx < 0 {
		idx = count - 1
	}
	if idx >= count {
		idx = 0
	}
	m.filterIndex = idx
	var cmd tea.Cmd
	for i := range m.filterInputs {
		if i == m.filterIndex {
			cmd = m.filterInputs[i].Focus()
		} else {
			m.filterInputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) applyFilter() error {
	cfg, err := parseFilter(
		m.filterInputs[0].Value(),
		m.filterInputs[1].Value(),
		m.filterInputs[2].Value(),
		m.filterInputs[3].Value(),
	)
	if err != nil {
		return err
	}
	m.cfg = cfg
	return nil
}

func parseFilter(sourceInput, sinceInput, lastInput, windowInput string) (model.StatsConfig, error) {
	var cfg model.StatsConfig
	cfg.Source = strings.TrimSpace(sourceInput)
	switch cfg.Source {
	case "", model.SourceTerminal, model.SourceAPI, model.SourceFile:
	default:
		return model.StatsConfig{}, fmt.Errorf("invalid source (use terminal, api or file)")
	}

	if sinceInput = strings.TrimSpace(sinceInput); sinceInput != "" {
		parsed, err := time.ParseInLocation("2006-01-02", sinceInput, time.Local)
		if err != nil {
			return model.StatsConfig{}, fmt.Errorf("invalid since date (expected YYYY-MM-DD)")
		}
		cfg.Since = &parsed
	}

	if lastInput = strings.TrimSpace(lastInput); lastInput != "" {
		parsed, err := strconv.Atoi(lastInput)
		if err != nil || parsed < 0 {
			return model.StatsConfig{}, fmt.Errorf("invalid last value (use 0 or positive integer)")
		}
		cfg.Last = parsed
	}

	if windowInput = strings.TrimSpace(windowInput); windowInput != "" {
		parsed, err := strconv.Atoi(windowInput)
		if err != nil {
			return model.StatsConfig{}, fmt.Errorf("invalid curve window (use integer)")
		}
		if parsed < 1 {
			return model.StatsConfig{}, fmt.Errorf("invalid curve window (use integer >= 1)")
		}
		cfg.CurveWindow = parsed
	}
	return cfg, nil
}

func formatDuration(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Round(100 * time.Millisecond).String()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func nextCurveWindow(n int) int {
	if n < 5 {
		return 5
	}
	if n%5 == 0 {
		return n + 5
	}
	return ((n / 5) + 1) * 5
}

func prevCurveWindow(n int) int {
	if n <= 5 {
		return 1
	}
	if n%5 == 0 {
		return n - 5
	}
	return (n / 5) * 5
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
