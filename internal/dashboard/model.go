package dashboard

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/betbot/crasher/internal/bus"
	"github.com/betbot/crasher/internal/hotstreak"
	"github.com/betbot/crasher/internal/ports"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("39")).Padding(0, 1)
	hotStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	coldStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	goodStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

type updateMsg struct {
	snapshot ports.Snapshot
}

type tickMsg time.Time

type model struct {
	bus      *bus.SnapshotBus
	snapshot ports.Snapshot
	seeded   bool
	width    int
	height   int
}

func newModel(b *bus.SnapshotBus) model {
	m := model{bus: b}
	if snap, ok := b.Latest(); ok {
		m.snapshot = snap
		m.seeded = true
	}
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), m.tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// Bubble Tea 会拦截 Ctrl+C，主动补发一次 SIGINT，
			// 让主程序走统一的优雅退出链路（停机前结算当前回合）
			_ = syscall.Kill(os.Getpid(), syscall.SIGINT)
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case updateMsg:
		m.snapshot = msg.snapshot
		m.seeded = true
		return m, m.waitForUpdate()
	case tickMsg:
		// 信号可能被合并丢弃，定时兜底拉一次最新快照
		if snap, ok := m.bus.Latest(); ok {
			m.snapshot = snap
			m.seeded = true
		}
		return m, m.tick()
	}
	return m, nil
}

func (m model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		<-m.bus.Updates()
		snap, _ := m.bus.Latest()
		return updateMsg{snapshot: snap}
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) View() string {
	if !m.seeded {
		return "等待引擎数据..."
	}

	snap := m.snapshot
	availableWidth := m.width - 4
	if availableWidth < 72 {
		availableWidth = 72
	}
	leftWidth := availableWidth/2 - 1
	rightWidth := availableWidth/2 - 1

	left := panelStyle.Width(leftWidth).Render(lipgloss.JoinVertical(lipgloss.Left,
		m.renderEngine(snap, leftWidth),
		"",
		m.renderSignal(snap, leftWidth),
	))
	right := panelStyle.Width(rightWidth).Render(lipgloss.JoinVertical(lipgloss.Left,
		m.renderStrategies(snap, rightWidth),
		"",
		m.renderRecent(snap, rightWidth),
	))

	content := lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(snap), content,
		dimStyle.Render("  q 退出（先结算当前回合）"))
}

func (m model) renderHeader(snap ports.Snapshot) string {
	title := fmt.Sprintf("Crasher | Session: %s | Round #%d | %s",
		shortID(snap.SessionID), snap.RoundIndex, time.Now().Format("15:04:05"))
	return headerStyle.Render(title)
}

func (m model) renderEngine(snap ports.Snapshot, width int) string {
	var lines []string
	lines = append(lines, titleStyle.Render("Engine"))
	lines = append(lines, strings.Repeat("─", width-4))

	lines = append(lines, fmt.Sprintf("Phase:   %s", snap.Phase))
	lines = append(lines, fmt.Sprintf("Balance: %s", snap.Balance.String()))

	mode := "manual"
	if snap.Autopilot {
		mode = "autopilot"
	}
	lines = append(lines, fmt.Sprintf("Mode:    %s", mode))

	switch {
	case snap.Halted:
		lines = append(lines, badStyle.Render(fmt.Sprintf("⛔ HALTED: %s", snap.HaltReason)))
	case snap.Paused:
		lines = append(lines, warnStyle.Render("⏸ Paused（仅采集，不下注）"))
	default:
		lines = append(lines, goodStyle.Render("▶ Running"))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderSignal(snap ports.Snapshot, width int) string {
	sig := snap.Signal
	var lines []string
	lines = append(lines, titleStyle.Render("Hotstreak Signal"))
	lines = append(lines, strings.Repeat("─", width-4))

	class := string(sig.Classification)
	switch sig.Classification {
	case hotstreak.Hot:
		class = hotStyle.Render("🔥 HOT")
	case hotstreak.Cold:
		class = coldStyle.Render("🧊 COLD")
	default:
		class = dimStyle.Render("neutral")
	}
	lines = append(lines, fmt.Sprintf("Class:  %s  Conf:%.2f", class, sig.Confidence))
	lines = append(lines, fmt.Sprintf("Mean:   short:%.2f long:%.2f σ:%.2f",
		sig.ShortMean, sig.LongMean, sig.LongStdDev))

	if sig.Streak != nil {
		lines = append(lines, fmt.Sprintf("Streak: %s len:%d avg:%.2f",
			sig.Streak.Kind, sig.Streak.Length, sig.Streak.Average))
	} else if sig.StreakJustEnded {
		lines = append(lines, warnStyle.Render("Streak: just ended (chain window)"))
	} else {
		lines = append(lines, "Streak: -")
	}
	if len(sig.Patterns) > 0 {
		lines = append(lines, fmt.Sprintf("Flags:  %s", strings.Join(sig.Patterns, " ")))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderStrategies(snap ports.Snapshot, width int) string {
	var lines []string
	lines = append(lines, titleStyle.Render("Strategies"))
	lines = append(lines, strings.Repeat("─", width-4))

	if len(snap.Strategies) == 0 {
		lines = append(lines, dimStyle.Render("(none)"))
		return strings.Join(lines, "\n")
	}
	for _, st := range snap.Strategies {
		phase := string(st.Phase)
		if st.PendingBetID != "" {
			phase = warnStyle.Render(phase)
		}
		profit := st.TotalProfit.String()
		profitLine := profit
		if st.TotalProfit.IsNegative() {
			profitLine = badStyle.Render(profit)
		} else if st.TotalProfit.IsPositive() {
			profitLine = goodStyle.Render("+" + profit)
		}
		lines = append(lines, fmt.Sprintf("%-10s %-9s stake:%-8s L:%d W:%d P/L:%s",
			truncate(st.Name, 10), phase, st.CurrentStake.String(),
			st.ConsecutiveLosses, st.Wins, profitLine))
		if st.Cooldown > 0 {
			lines = append(lines, dimStyle.Render(fmt.Sprintf("  cooldown: %d 回合", st.Cooldown)))
		}
	}
	return strings.Join(lines, "\n")
}

func (m model) renderRecent(snap ports.Snapshot, width int) string {
	var lines []string
	lines = append(lines, titleStyle.Render("Recent Crashes"))
	lines = append(lines, strings.Repeat("─", width-4))

	recent := snap.Recent
	perLine := (width - 6) / 7
	if perLine < 4 {
		perLine = 4
	}
	if len(recent) > perLine*3 {
		recent = recent[len(recent)-perLine*3:]
	}
	var row []string
	for i, v := range recent {
		cell := fmt.Sprintf("%6.2f", v)
		switch {
		case v >= 2.0:
			cell = goodStyle.Render(cell)
		case v < 1.5:
			cell = badStyle.Render(cell)
		}
		row = append(row, cell)
		if (i+1)%perLine == 0 {
			lines = append(lines, strings.Join(row, " "))
			row = row[:0]
		}
	}
	if len(row) > 0 {
		lines = append(lines, strings.Join(row, " "))
	}
	if len(recent) == 0 {
		lines = append(lines, dimStyle.Render("(no data)"))
	}
	return strings.Join(lines, "\n")
}

func shortID(id string) string {
	return truncate(id, 8)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
