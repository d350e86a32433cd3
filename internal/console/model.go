// Package console is the interactive terminal view of the announcement feed:
// a scrollable page of grouped records with search, page controls, body
// expansion, and attachment actions.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"annfeed/internal/attach"
	"annfeed/internal/domain"
	"annfeed/internal/feed"
	"annfeed/internal/util"
)

// Options configures the console model.
type Options struct {
	Feed       *feed.Feed
	Attach     *attach.Manager // nil hides attachment actions
	ClampLines int             // collapsed body height, default 3
	Debounce   time.Duration   // resize re-measure delay, default 150ms
	Title      string
	Logger     *slog.Logger
}

// Messages.
type tickMsg time.Time
type changedMsg struct{}

type loadedMsg struct {
	action string
	err    error
}

type pageMsg struct {
	page int
	ok   bool
}

type attachMsg struct {
	id     string
	action string
	path   string
	err    error
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model is the bubbletea model of the console.
type Model struct {
	feed    *feed.Feed
	attach  *attach.Manager
	tracker *feed.Tracker
	layout  *layout
	changes chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	log     *slog.Logger
	title   string
	clamp   int

	viewport      viewport.Model
	search        textinput.Model
	searching     bool
	ready         bool
	width, height int

	view       feed.View
	cursor     int
	openGroups map[string]bool   // group key -> members listed
	mounted    map[string]string // record id -> body text of its registered handle
	rowLines   []int             // first content line of each row
	status     string
}

// New creates the console model. Cancelling ctx, or quitting, stops any
// in-flight load.
func New(ctx context.Context, opts Options) Model {
	if opts.ClampLines <= 0 {
		opts.ClampLines = 3
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 150 * time.Millisecond
	}
	if opts.Title == "" {
		opts.Title = "Announcements"
	}
	if opts.Logger == nil {
		opts.Logger = util.Discard()
	}
	ctx, cancel := context.WithCancel(ctx)

	changes := make(chan struct{}, 1)
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "text from:YYYY-MM-DD to:YYYY-MM-DD"
	ti.CharLimit = 200

	return Model{
		feed:       opts.Feed,
		attach:     opts.Attach,
		tracker:    feed.NewTracker(opts.Debounce, func() { notify(changes) }),
		layout:     &layout{},
		changes:    changes,
		ctx:        ctx,
		cancel:     cancel,
		log:        opts.Logger,
		title:      opts.Title,
		clamp:      opts.ClampLines,
		search:     ti,
		view:       opts.Feed.View(),
		openGroups: make(map[string]bool),
		mounted:    make(map[string]string),
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Notify asks the console to re-render, e.g. after a live merge. Safe to
// call from any goroutine.
func (m Model) Notify() {
	notify(m.changes)
}

func (m Model) waitForChange() tea.Cmd {
	ch := m.changes
	return func() tea.Msg {
		<-ch
		return changedMsg{}
	}
}

// Init starts the first load, the render tick, and the change listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.waitForChange(),
		m.loadCmd("load", m.feed.Refresh),
	)
}

func (m Model) loadCmd(action string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return loadedMsg{action: action, err: fn(ctx)}
	}
}

func (m Model) pageCmd(n int) tea.Cmd {
	ctx, f := m.ctx, m.feed
	return func() tea.Msg {
		return pageMsg{page: n, ok: f.SetPage(ctx, n)}
	}
}

func (m Model) attachCmd(action, id string) tea.Cmd {
	ctx, a := m.ctx, m.attach
	return func() tea.Msg {
		var path string
		var err error
		if action == "view" {
			path, err = a.View(ctx, id)
		} else {
			path, err = a.Download(ctx, id)
		}
		return attachMsg{id: id, action: action, path: path, err: err}
	}
}

// Update handles input and background results.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updateKeys(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := max(m.height-headerHeight-footerHeight, 1)
		m.layout.setWidth(bodyWidth(m.width))
		m.search.Width = max(m.width-4, 10)
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
			m.tracker.Resize()
		}
		m.refresh()
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tickCmd()

	case changedMsg:
		m.refresh()
		return m, m.waitForChange()

	case loadedMsg:
		switch {
		case errors.Is(msg.err, feed.ErrStale):
			m.log.Debug("load superseded", "action", msg.action)
			return m, nil
		case msg.err != nil:
			m.log.Error("load failed", "action", msg.action, "error", msg.err)
			m.status = "load failed: " + msg.err.Error()
		case msg.action != "load" && msg.action != "refresh":
			m.status = ""
		}
		if msg.action != "refresh" {
			m.cursor = 0
			m.viewport.GotoTop()
		}
		m.refresh()
		return m, nil

	case pageMsg:
		if !msg.ok {
			m.status = fmt.Sprintf("page %d is not available", msg.page)
		} else {
			m.cursor = 0
			m.viewport.GotoTop()
		}
		m.refresh()
		return m, nil

	case attachMsg:
		m.status = attachStatus(msg)
		m.refresh()
		return m, nil
	}

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		text, from, to := ParseSearch(m.search.Value())
		m.searching = false
		m.search.Blur()
		f := m.feed
		return m, m.loadCmd("search", func(ctx context.Context) error {
			return f.Search(ctx, text, from, to)
		})
	case "esc":
		m.searching = false
		m.search.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	v := m.view
	switch msg.String() {
	case "q", "ctrl+c":
		m.tracker.Close()
		m.cancel()
		return m, tea.Quit
	case "/":
		m.searching = true
		return m, m.search.Focus()
	case "c":
		m.search.SetValue("")
		return m, m.loadCmd("clear", m.feed.ClearFilters)
	case "r":
		return m, m.loadCmd("refresh", m.feed.Refresh)
	case "left", "h":
		if v.Page > 1 {
			return m, m.pageCmd(v.Page - 1)
		}
		return m, nil
	case "right", "l":
		if v.Page < v.TotalPages {
			return m, m.pageCmd(v.Page + 1)
		}
		return m, nil
	case "home", "g":
		return m, m.pageCmd(1)
	case "end", "G":
		return m, m.pageCmd(v.TotalPages)
	case "+", "-":
		size := v.PageSize + 10
		if msg.String() == "-" {
			size = max(v.PageSize-10, 10)
		}
		f := m.feed
		return m, m.loadCmd("resize", func(ctx context.Context) error {
			return f.SetPageSize(ctx, size)
		})
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		m.refresh()
		m.ensureVisible()
		return m, nil
	case "down", "j":
		if m.cursor < len(v.Rows)-1 {
			m.cursor++
		}
		m.refresh()
		m.ensureVisible()
		return m, nil
	case "enter", "e":
		if rec, ok := m.selected(); ok {
			m.tracker.Toggle(rec.ID)
			m.refresh()
		}
		return m, nil
	case "tab":
		if g, ok := m.selectedGroup(); ok && g.Collapsible() {
			m.openGroups[g.Key] = !m.openGroups[g.Key]
			m.refresh()
		}
		return m, nil
	case "d", "v":
		rec, ok := m.selected()
		if !ok || m.attach == nil {
			return m, nil
		}
		action := "download"
		if msg.String() == "v" {
			action = "view"
		}
		m.status = action + "ing attachment for " + rec.ID + "..."
		return m, m.attachCmd(action, rec.ID)
	}

	var cmd tea.Cmd
	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m *Model) selectedGroup() (feed.Group, bool) {
	if m.cursor < 0 || m.cursor >= len(m.view.Rows) {
		return feed.Group{}, false
	}
	return m.view.Rows[m.cursor], true
}

func (m *Model) selected() (domain.Announcement, bool) {
	g, ok := m.selectedGroup()
	if !ok || len(g.Members) == 0 {
		return domain.Announcement{}, false
	}
	return g.Lead(), true
}

// refresh takes a new view snapshot, syncs mounted body handles with the
// visible rows, and re-renders the viewport content. A record whose body
// changed gets a fresh handle, which queues a measurement pass.
func (m *Model) refresh() {
	m.view = m.feed.View()
	if m.cursor >= len(m.view.Rows) {
		m.cursor = max(len(m.view.Rows)-1, 0)
	}

	visible := make(map[string]bool, len(m.view.Rows))
	for _, g := range m.view.Rows {
		lead := g.Lead()
		if lead.ID == "" {
			continue
		}
		visible[lead.ID] = true
		body := bodyText(lead)
		if text, ok := m.mounted[lead.ID]; !ok || text != body {
			m.tracker.Mount(lead.ID, &bodyHandle{text: body, layout: m.layout, clamp: m.clamp})
			m.mounted[lead.ID] = body
		}
	}
	for id := range m.mounted {
		if !visible[id] {
			m.tracker.Unmount(id)
			if m.attach != nil {
				m.attach.Forget(id)
			}
			delete(m.mounted, id)
		}
	}

	if m.ready {
		m.viewport.SetContent(m.renderContent())
	}
}

// ensureVisible scrolls the viewport so the selected row is visible.
func (m *Model) ensureVisible() {
	if m.cursor >= len(m.rowLines) {
		return
	}
	line := m.rowLines[m.cursor]
	yOff := m.viewport.YOffset
	vpH := m.viewport.Height
	if line < yOff {
		m.viewport.SetYOffset(line)
	} else if line >= yOff+vpH {
		m.viewport.SetYOffset(line - vpH + 1)
	}
}

// ParseSearch splits console search input into free text and the optional
// from:/to: date filters.
func ParseSearch(input string) (text, from, to string) {
	var words []string
	for _, w := range strings.Fields(input) {
		switch {
		case strings.HasPrefix(w, "from:"):
			from = strings.TrimPrefix(w, "from:")
		case strings.HasPrefix(w, "to:"):
			to = strings.TrimPrefix(w, "to:")
		default:
			words = append(words, w)
		}
	}
	return strings.Join(words, " "), from, to
}

func attachStatus(msg attachMsg) string {
	switch {
	case errors.Is(msg.err, attach.ErrBusy):
		return "attachment request already in progress for " + msg.id
	case msg.err != nil:
		text, _ := attach.Message(msg.err)
		return text
	case msg.action == "view":
		return "opened " + msg.path
	default:
		return "saved " + msg.path
	}
}
