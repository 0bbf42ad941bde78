package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rjoshi44/huntd/internal/model"
)

// Lines per queue item in the list view (title + subtitle + blank separator).
const itemHeight = 3

const loadTimeout = 5 * time.Second

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39")) // bright blue

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240")) // dim gray

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	activeHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("39"))

	inactiveHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	itemTitleStyle = lipgloss.NewStyle().
			Bold(true)

	itemSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")). // bright white
				Background(lipgloss.Color("24"))  // dark blue bg

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(16)

	detailValueStyle = lipgloss.NewStyle()

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	payloadStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	statusColors = map[model.Status]string{
		model.StatusPending:    "220", // yellow
		model.StatusProcessing: "39",  // blue
		model.StatusSuccess:    "40",  // green
		model.StatusFailed:     "196", // red
		model.StatusFiltered:   "245", // gray
		model.StatusSkipped:    "245",
	}
)

// itemsLoadedMsg is sent when an async queue refresh completes.
type itemsLoadedMsg struct {
	live []*model.QueueItem
	done []*model.QueueItem
	err  error
}

// historyLoadedMsg is sent when the detail view's stage history arrives.
type historyLoadedMsg struct {
	key    string
	stages []model.Stage
	err    error
}

type monitorModel struct {
	queue model.QueueStore

	live []*model.QueueItem
	done []*model.QueueItem

	leftViewport  viewport.Model
	rightViewport viewport.Model
	activePane    int // 0=live, 1=finished
	leftCursor    int
	rightCursor   int
	width         int
	height        int
	ready         bool
	loadError     string

	view           viewState
	detailItem     *model.QueueItem
	detailHistory  []model.Stage
	detailViewport viewport.Model
}

func (m monitorModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m monitorModel) loadCmd() tea.Cmd {
	queue := m.queue
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		var live []*model.QueueItem
		for _, st := range []model.Status{model.StatusProcessing, model.StatusPending} {
			items, err := queue.ListItems(ctx, st, "", 100)
			if err != nil {
				return itemsLoadedMsg{err: err}
			}
			live = append(live, items...)
		}

		var done []*model.QueueItem
		for _, st := range []model.Status{model.StatusSuccess, model.StatusFailed, model.StatusFiltered, model.StatusSkipped} {
			items, err := queue.ListItems(ctx, st, "", 50)
			if err != nil {
				return itemsLoadedMsg{err: err}
			}
			done = append(done, items...)
		}
		sortNewestFirst(done)
		return itemsLoadedMsg{live: live, done: done}
	}
}

func (m monitorModel) historyCmd(key string) tea.Cmd {
	queue := m.queue
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		stages, err := queue.CompletedStages(ctx, key)
		return historyLoadedMsg{key: key, stages: stages, err: err}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view == viewDetail {
			m.detailViewport.Width = m.width - 4
			m.detailViewport.Height = m.height - 4
			m.detailViewport.SetContent(m.renderDetail())
		}
		return m, nil

	case itemsLoadedMsg:
		if msg.err != nil {
			m.loadError = msg.err.Error()
			return m, nil
		}
		m.loadError = ""
		m.live = msg.live
		m.done = msg.done
		m.leftCursor = clamp(m.leftCursor, 0, max(len(m.live)-1, 0))
		m.rightCursor = clamp(m.rightCursor, 0, max(len(m.done)-1, 0))
		if m.ready {
			m.recalcContent()
		}
		return m, nil

	case historyLoadedMsg:
		if m.view == viewDetail && m.detailItem != nil && m.detailItem.Key == msg.key && msg.err == nil {
			m.detailHistory = msg.stages
			m.detailViewport.SetContent(m.renderDetail())
		}
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}

	return m, nil
}

func (m monitorModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "r":
		return m, m.loadCmd()
	case "tab", "left", "right":
		m.activePane = 1 - m.activePane
		m.recalcContent()
		return m, nil
	case "up", "k":
		m.moveCursor(-1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "enter":
		return m.openDetailView()
	}

	// Forward other keys (pgup/pgdn/home/end) to the active viewport.
	var cmd tea.Cmd
	if m.activePane == 0 {
		m.leftViewport, cmd = m.leftViewport.Update(msg)
	} else {
		m.rightViewport, cmd = m.rightViewport.Update(msg)
	}
	return m, cmd
}

func (m monitorModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "o":
		if url := itemURL(m.detailItem); url != "" {
			openURL(url)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

func (m *monitorModel) moveCursor(delta int) {
	if m.activePane == 0 {
		m.leftCursor = clamp(m.leftCursor+delta, 0, max(len(m.live)-1, 0))
	} else {
		m.rightCursor = clamp(m.rightCursor+delta, 0, max(len(m.done)-1, 0))
	}
}

func (m *monitorModel) ensureCursorVisible() {
	var vp *viewport.Model
	var cursor int
	if m.activePane == 0 {
		vp = &m.leftViewport
		cursor = m.leftCursor
	} else {
		vp = &m.rightViewport
		cursor = m.rightCursor
	}

	cursorTop := cursor * itemHeight
	cursorBottom := cursorTop + itemHeight - 1

	if cursorTop < vp.YOffset {
		vp.SetYOffset(cursorTop)
	} else if cursorBottom >= vp.YOffset+vp.Height {
		vp.SetYOffset(cursorBottom - vp.Height + 1)
	}
}

func (m monitorModel) openDetailView() (tea.Model, tea.Cmd) {
	items := m.activeItems()
	cursor := m.activeCursor()
	if len(items) == 0 {
		return m, nil
	}

	item := items[cursor]
	m.view = viewDetail
	m.detailItem = item
	m.detailHistory = nil
	m.detailViewport = viewport.New(m.width-4, m.height-4)
	m.detailViewport.SetContent(m.renderDetail())
	return m, m.historyCmd(item.Key)
}

func (m *monitorModel) recalcLayout() {
	// 2 border chars per pane + 1 gap between panes.
	paneWidth := max((m.width-5)/2, 20)

	// Header (1 line) + border top/bottom (2) + status bar (1) = 4 lines overhead.
	paneHeight := max(m.height-4, 5)

	if !m.ready {
		m.leftViewport = viewport.New(paneWidth, paneHeight)
		m.rightViewport = viewport.New(paneWidth, paneHeight)
		m.ready = true
	} else {
		m.leftViewport.Width = paneWidth
		m.leftViewport.Height = paneHeight
		m.rightViewport.Width = paneWidth
		m.rightViewport.Height = paneHeight
	}

	m.recalcContent()
}

func (m *monitorModel) recalcContent() {
	m.leftViewport.SetContent(renderItems(m.live, m.leftCursor, m.activePane == 0))
	m.rightViewport.SetContent(renderItems(m.done, m.rightCursor, m.activePane == 1))
}

func (m monitorModel) activeItems() []*model.QueueItem {
	if m.activePane == 0 {
		return m.live
	}
	return m.done
}

func (m monitorModel) activeCursor() int {
	if m.activePane == 0 {
		return m.leftCursor
	}
	return m.rightCursor
}

func (m monitorModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.view == viewDetail {
		return m.viewDetail()
	}

	return m.viewList()
}

func (m monitorModel) viewList() string {
	paneWidth := m.leftViewport.Width

	leftHeader := fmt.Sprintf(" Queue (%d)", len(m.live))
	rightHeader := fmt.Sprintf(" Finished (%d)", len(m.done))

	var leftHeaderRendered, rightHeaderRendered string
	var leftBorder, rightBorder lipgloss.Style

	if m.activePane == 0 {
		leftHeaderRendered = activeHeaderStyle.Render(leftHeader)
		rightHeaderRendered = inactiveHeaderStyle.Render(rightHeader)
		leftBorder = activeBorderStyle.Width(paneWidth)
		rightBorder = inactiveBorderStyle.Width(paneWidth)
	} else {
		leftHeaderRendered = inactiveHeaderStyle.Render(leftHeader)
		rightHeaderRendered = activeHeaderStyle.Render(rightHeader)
		leftBorder = inactiveBorderStyle.Width(paneWidth)
		rightBorder = activeBorderStyle.Width(paneWidth)
	}

	leftPane := leftBorder.Render(m.leftViewport.View())
	rightPane := rightBorder.Render(m.rightViewport.View())

	headerRow := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(paneWidth+2).Render(leftHeaderRendered),
		" ",
		lipgloss.NewStyle().Width(paneWidth+2).Render(rightHeaderRendered),
	)

	panes := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, " ", rightPane)

	statusText := fmt.Sprintf(" %d live | %d finished    ←/→/Tab switch  ↑/↓ cursor  Enter detail  r refresh  q quit",
		len(m.live), len(m.done))
	if m.loadError != "" {
		statusText = " load failed: " + m.loadError + "  (r to retry)"
	}
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return headerRow + "\n" + panes + "\n" + statusBar
}

func (m monitorModel) viewDetail() string {
	title := detailTitleStyle.Render("Item Details")

	border := activeBorderStyle.Width(m.width - 2)
	content := border.Render(m.detailViewport.View())

	statusText := " o open URL  esc/backspace back  ↑/↓ scroll  q quit"
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return title + "\n" + content + "\n" + statusBar
}

func (m monitorModel) renderDetail() string {
	it := m.detailItem
	if it == nil {
		return ""
	}
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(detailValueStyle.Render(value))
		b.WriteByte('\n')
	}

	addField("Title", itemTitle(it))
	addField("ID", it.ID)
	addField("Type", string(it.EntityType))
	addField("Status", string(it.Status))
	addField("Stage", string(it.Stage))
	addField("Key", it.Key)
	if it.RetryCount > 0 {
		addField("Retries", fmt.Sprintf("%d", it.RetryCount))
	}
	addField("Result", it.ResultMessage)
	addField("Spawned From", it.SpawnedFrom)

	b.WriteByte('\n')
	addField("Created", it.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if it.ClaimedAt != nil {
		addField("Claimed", it.ClaimedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if it.CompletedAt != nil {
		addField("Completed", it.CompletedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if it.Status == model.StatusPending && it.NextAttemptAt.After(time.Now()) {
		addField("Next Attempt", it.NextAttemptAt.Local().Format("2006-01-02 15:04:05"))
	}

	if len(m.detailHistory) > 0 {
		stages := make([]string, len(m.detailHistory))
		for i, st := range m.detailHistory {
			stages[i] = string(st)
		}
		b.WriteByte('\n')
		addField("Stages Done", strings.Join(stages, " → "))
	}

	wrapWidth := max(m.width-8, 20)
	divider := func(label string) string {
		fill := strings.Repeat("─", max(wrapWidth-len(label), 3))
		return dividerStyle.Render(label + fill)
	}

	if len(it.Payload) > 0 {
		b.WriteByte('\n')
		b.WriteString(divider("── Payload ") + "\n\n")
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, it.Payload, "", "  "); err == nil {
			b.WriteString(payloadStyle.Render(pretty.String()) + "\n")
		} else {
			b.WriteString(errorStyle.Render("⚠ unreadable payload: "+err.Error()) + "\n")
		}
	}

	return b.String()
}

// itemTitle derives a display line from the item's payload.
func itemTitle(it *model.QueueItem) string {
	switch it.EntityType {
	case model.EntityCompany:
		var p model.CompanyPayload
		if model.DecodePayload(it.Payload, &p) == nil && p.Name != "" {
			return p.Name
		}
	case model.EntityJob:
		var p model.JobPayload
		if model.DecodePayload(it.Payload, &p) == nil {
			if p.Title != "" && p.CompanyName != "" {
				return p.CompanyName + ": " + p.Title
			}
			if p.URL != "" {
				return p.URL
			}
		}
	case model.EntitySourceDiscovery:
		var p model.DiscoveryPayload
		if model.DecodePayload(it.Payload, &p) == nil && p.BoardURL != "" {
			return p.BoardURL
		}
	case model.EntityScrape:
		return "scrape run"
	}
	return it.Key
}

// itemURL returns the most useful URL on an item, if any.
func itemURL(it *model.QueueItem) string {
	if it == nil {
		return ""
	}
	switch it.EntityType {
	case model.EntityCompany:
		var p model.CompanyPayload
		if model.DecodePayload(it.Payload, &p) == nil {
			return p.Website
		}
	case model.EntityJob:
		var p model.JobPayload
		if model.DecodePayload(it.Payload, &p) == nil {
			return p.URL
		}
	case model.EntitySourceDiscovery:
		var p model.DiscoveryPayload
		if model.DecodePayload(it.Payload, &p) == nil {
			return p.BoardURL
		}
	}
	return ""
}

func renderItems(items []*model.QueueItem, cursor int, isActive bool) string {
	if len(items) == 0 {
		return "  (no items)"
	}

	var b strings.Builder
	for i, it := range items {
		isSelected := isActive && i == cursor

		titleSt := itemTitleStyle
		subtitleSt := itemSubtitleStyle
		prefix := "  "
		if isSelected {
			titleSt = selectedTitleStyle
			subtitleSt = selectedSubtitleStyle
			prefix = "> "
		}

		b.WriteString(prefix)
		b.WriteString(titleSt.Render(itemTitle(it)))
		b.WriteByte('\n')

		status := string(it.Status)
		if color, ok := statusColors[it.Status]; ok && !isSelected {
			status = lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(status)
		}
		sub := fmt.Sprintf("%s · %s · %s", it.EntityType, it.Stage, age(it.UpdatedAt))
		b.WriteString(prefix)
		b.WriteString(status + " " + subtitleSt.Render(sub))
		b.WriteByte('\n')

		if i < len(items)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func age(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func sortNewestFirst(items []*model.QueueItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// Run launches the interactive split-pane queue monitor.
func Run(queue model.QueueStore) error {
	m := monitorModel{queue: queue}
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
