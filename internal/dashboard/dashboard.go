// Package dashboard implements the `perchd top` terminal dashboard, a live
// view over a running instance's /stats endpoint.
package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/perchd/perchd/internal/stats"
	"github.com/perchd/perchd/internal/types"
)

// pollInterval is how often the dashboard refreshes from /stats.
const pollInterval = 2 * time.Second

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	badStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	footerStyle = lipgloss.NewStyle().
			Faint(true)
)

// statsPayload mirrors the /stats response shape.
type statsPayload struct {
	UptimeSeconds int64                             `json:"uptime_seconds"`
	Pool          types.PoolSnapshot                `json:"pool"`
	MemoryMB      uint64                            `json:"memory_mb"`
	Goroutines    int                               `json:"goroutines"`
	Accounts      map[string]stats.AccountStatsJSON `json:"accounts"`
	Counters      struct {
		Acquired  int64 `json:"acquired"`
		Released  int64 `json:"released"`
		Rejected  int64 `json:"rejected"`
		Exhausted int64 `json:"exhausted"`
		Reclaimed int64 `json:"reclaimed"`
		Restarts  int64 `json:"restarts"`
	} `json:"counters"`
}

type statsMsg struct {
	payload *statsPayload
	err     error
}

type tickMsg time.Time

// Model is the bubbletea model for the dashboard.
type Model struct {
	baseURL string
	client  *http.Client

	payload *statsPayload
	err     error
	updated time.Time
}

// NewModel creates a dashboard model polling the given base URL.
func NewModel(baseURL string) Model {
	return Model{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Run starts the dashboard program and blocks until it exits.
func Run(baseURL string) error {
	_, err := tea.NewProgram(NewModel(baseURL), tea.WithAltScreen()).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch, tick())
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetch pulls /stats once.
func (m Model) fetch() tea.Msg {
	resp, err := m.client.Get(m.baseURL + "/stats")
	if err != nil {
		return statsMsg{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statsMsg{err: fmt.Errorf("unexpected status %d from /stats", resp.StatusCode)}
	}

	var payload statsPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return statsMsg{err: fmt.Errorf("failed to decode /stats: %w", err)}
	}
	return statsMsg{payload: &payload}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.fetch
		}
	case tickMsg:
		return m, tea.Batch(m.fetch, tick())
	case statsMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.payload = msg.payload
			m.updated = time.Now()
		}
	}
	return m, nil
}

func (m Model) View() string {
	s := titleStyle.Render("perchd") + labelStyle.Render("  "+m.baseURL) + "\n\n"

	if m.err != nil {
		s += badStyle.Render("error: "+m.err.Error()) + "\n\n"
	}
	if m.payload == nil {
		return s + labelStyle.Render("waiting for first sample...") + "\n\n" +
			footerStyle.Render("q quit · r refresh")
	}

	p := m.payload

	browserState := badStyle.Render("down")
	if p.Pool.BrowserConnected {
		browserState = okStyle.Render("up")
	}

	s += fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		labelStyle.Render("browser"), browserState,
		labelStyle.Render("instance"), valueStyle.Render(p.Pool.InstanceID),
		labelStyle.Render("uptime"), valueStyle.Render(formatUptime(p.UptimeSeconds)),
		labelStyle.Render("mem"), valueStyle.Render(fmt.Sprintf("%dMB", p.MemoryMB)),
	)
	s += fmt.Sprintf("%s %s   %s %s\n\n",
		labelStyle.Render("pages"),
		valueStyle.Render(fmt.Sprintf("%d/%d", p.Pool.ActivePages, p.Pool.MaxPages)),
		labelStyle.Render("scrapes"),
		valueStyle.Render(fmt.Sprintf("%d/%d", p.Pool.ActiveScrapes, p.Pool.MaxConcurrentScrapes)),
	)

	s += fmt.Sprintf("%s acquired=%d released=%d rejected=%d exhausted=%d reclaimed=%d restarts=%d\n\n",
		labelStyle.Render("pool"),
		p.Counters.Acquired, p.Counters.Released, p.Counters.Rejected,
		p.Counters.Exhausted, p.Counters.Reclaimed, p.Counters.Restarts,
	)

	s += m.renderAccounts()

	s += footerStyle.Render(fmt.Sprintf("q quit · r refresh · updated %s",
		m.updated.Format("15:04:05")))
	return s
}

// renderAccounts shows the busiest accounts, most scraped first.
func (m Model) renderAccounts() string {
	if len(m.payload.Accounts) == 0 {
		return labelStyle.Render("no accounts scraped yet") + "\n\n"
	}

	type row struct {
		account string
		stats.AccountStatsJSON
	}
	rows := make([]row, 0, len(m.payload.Accounts))
	for account, s := range m.payload.Accounts {
		rows = append(rows, row{account, s})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].ScrapeCount > rows[j].ScrapeCount
	})
	if len(rows) > 15 {
		rows = rows[:15]
	}

	out := headerStyle.Render(fmt.Sprintf("%-20s %8s %8s %8s %10s %9s",
		"ACCOUNT", "SCRAPES", "OK", "ERR", "AVG MS", "RATE")) + "\n"
	for _, r := range rows {
		out += fmt.Sprintf("%-20s %8d %8d %8d %10d %8.0f%%\n",
			truncate(r.account, 20), r.ScrapeCount, r.SuccessCount,
			r.ErrorCount, r.AvgLatencyMs, r.SuccessRate*100)
	}
	return out + "\n"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func formatUptime(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	if d >= time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%ds", seconds)
}
