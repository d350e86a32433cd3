package console

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"

	"annfeed/internal/attach"
	"annfeed/internal/dashboard"
	"annfeed/internal/domain"
	"annfeed/internal/feed"
)

// Styles.
var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
	filterStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("3")) // black on yellow
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("8"))
	companyStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	symbolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	timeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	moreStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	liveOnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	liveOffStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	highlightBG   = lipgloss.Color("236") // dark grey background
)

const (
	headerHeight = 1
	footerHeight = 2
	bodyIndent   = 4
)

// layout is the shared render width read by body handles on the
// measurement goroutine.
type layout struct {
	width atomic.Int64
}

func (l *layout) setWidth(w int) { l.width.Store(int64(w)) }
func (l *layout) getWidth() int  { return int(l.width.Load()) }

func bodyWidth(termWidth int) int {
	return max(termWidth-bodyIndent-1, 20)
}

// bodyHandle measures one record body at the current layout width.
type bodyHandle struct {
	text   string
	layout *layout
	clamp  int
}

var _ feed.Handle = (*bodyHandle)(nil)

func (h *bodyHandle) ContentHeight() int {
	if h.text == "" {
		return 0
	}
	return lipgloss.Height(wrap(h.text, h.layout.getWidth()))
}

func (h *bodyHandle) ClampHeight() int { return h.clamp }

func wrap(text string, width int) string {
	if width <= 0 {
		width = 80
	}
	return lipgloss.NewStyle().Width(width).Render(text)
}

func bodyText(a domain.Announcement) string {
	return strings.TrimSpace(a.Body)
}

// View renders the header, the scrollable content, and the footer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	return m.renderHeader() + "\n" + m.viewport.View() + "\n" + m.renderFooter()
}

func (m Model) renderHeader() string {
	v := m.view
	live := liveOffStyle.Render("● " + string(v.Live))
	if v.Live == feed.LiveConnected {
		live = liveOnStyle.Render("● live")
	}
	text := fmt.Sprintf(" %s    total: %s    page %d/%d    %s ",
		m.title, dashboard.FormatCount(v.Total), v.Page, v.TotalPages, v.Mode)
	if v.Loading {
		text += "   loading... "
	}
	style := headerStyle
	if v.Mode == feed.ModeFiltered {
		text += "   " + filterLabel(v.Query) + " "
		style = filterStyle
	}
	bar := style.Render(padOrTrunc(text, max(m.width-lipgloss.Width(live)-1, 0)))
	return bar + " " + live
}

func filterLabel(q feed.Query) string {
	var parts []string
	if q.Search != "" {
		parts = append(parts, fmt.Sprintf("%q", q.Search))
	}
	if q.FromDate != "" || q.ToDate != "" {
		parts = append(parts, q.FromDate+".."+q.ToDate)
	}
	return strings.Join(parts, " ")
}

func (m Model) renderFooter() string {
	v := m.view
	pages := " " + dashboard.PageLabels(v.Pages, v.Page) + fmt.Sprintf("    %d per page", v.PageSize)
	line1 := footerStyle.Render(padOrTrunc(pages, m.width))

	var line2 string
	switch {
	case m.searching:
		line2 = m.search.View()
	case m.status != "":
		line2 = " " + m.status
	default:
		help := " q quit  / search  c clear  r refresh  ←/→ page  ↑/↓ select  enter more  tab group  +/- size"
		if m.attach != nil {
			help += "  d download  v view"
		}
		line2 = dimStyle.Render(help)
	}
	return line1 + "\n" + line2
}

// renderContent renders every visible row and records where each starts.
func (m *Model) renderContent() string {
	var b strings.Builder
	v := m.view
	m.rowLines = m.rowLines[:0]
	line := 0
	write := func(s string) {
		b.WriteString(s)
		b.WriteString("\n")
		line += strings.Count(s, "\n") + 1
	}

	if v.Err != nil {
		write(errStyle.Render("  " + v.Err.Error()))
	}
	if len(v.Rows) == 0 {
		switch {
		case !v.Loaded:
			write(dimStyle.Render("  Loading..."))
		case v.Mode == feed.ModeFiltered:
			write(dimStyle.Render("  (no announcements match the filters)"))
		default:
			write(dimStyle.Render("  (no announcements)"))
		}
		return b.String()
	}

	for i, g := range v.Rows {
		m.rowLines = append(m.rowLines, line)
		write(m.renderRow(g, i == m.cursor))
	}
	return b.String()
}

func (m *Model) renderRow(g feed.Group, selected bool) string {
	lead := g.Lead()
	var lines []string

	marker := "  "
	if selected {
		marker = "> "
	}
	title := marker + timeStyle.Render(dashboard.FormatRecordTime(&lead)) + "  " +
		companyStyle.Render(companyLabel(lead))
	if sym := symbolLabel(lead.Symbols); sym != "" {
		title += " " + symbolStyle.Render(sym)
	}
	if g.Collapsible() {
		title += dimStyle.Render(fmt.Sprintf("  +%d similar", g.Size()-1))
	}
	lines = append(lines, title)

	headline := lead.Headline
	if headline == "" {
		headline = "(no headline)"
	}
	hl := headlineStyle
	if selected {
		hl = hl.Background(highlightBG)
	}
	lines = append(lines, indent(hl.Render(dashboard.Truncate(headline, max(m.width-bodyIndent, 10)))))

	if body := bodyText(lead); body != "" {
		expanded := m.tracker.Expanded(lead.ID)
		wrapped := strings.Split(wrap(body, bodyWidth(m.width)), "\n")
		if !expanded && len(wrapped) > m.clamp {
			wrapped = wrapped[:m.clamp]
		}
		for _, l := range wrapped {
			lines = append(lines, indent(l))
		}
		switch {
		case expanded:
			lines = append(lines, indent(moreStyle.Render("▲ less")))
		case m.tracker.Overflowing(lead.ID):
			lines = append(lines, indent(moreStyle.Render("▼ more")))
		}
	}

	for _, l := range lead.Links {
		label := l.Title
		if label == "" {
			label = "link"
		}
		lines = append(lines, indent(dimStyle.Render(label+": "+l.URL)))
	}

	if m.attach != nil {
		st := m.attach.State(lead.ID)
		switch {
		case st.Busy != attach.Idle:
			lines = append(lines, indent(moreStyle.Render("attachment: "+st.Busy.String()+"...")))
		case st.Err != "":
			lines = append(lines, indent(errStyle.Render(st.Err)))
		}
	}

	if g.Collapsible() && m.openGroups[g.Key] {
		for _, r := range g.Members[1:] {
			lines = append(lines, indent(dimStyle.Render("· "+dashboard.FormatRecordTime(&r)+"  "+
				companyLabel(r)+"  "+dashboard.Truncate(r.Headline, max(m.width-40, 10)))))
		}
	}
	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func companyLabel(a domain.Announcement) string {
	if a.CompanyName != "" {
		return a.CompanyName
	}
	if sym := a.Symbols.Primary(); sym != "" {
		return sym
	}
	return "(unknown company)"
}

// symbolLabel renders the preferred listing as VENUE:CODE.
func symbolLabel(s domain.Symbols) string {
	ex, code := s.Listing()
	if code == "" {
		return ""
	}
	return strings.ToUpper(string(ex)) + ":" + code
}

func indent(s string) string {
	return strings.Repeat(" ", bodyIndent) + s
}

func padOrTrunc(s string, width int) string {
	n := lipgloss.Width(s)
	if n >= width {
		return dashboard.Truncate(s, width)
	}
	return s + strings.Repeat(" ", width-n)
}
