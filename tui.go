package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// StatsModel is the bubbletea model behind the -tui display.
type StatsModel struct {
	stats       Stats
	total       uint64
	target      string
	progressBar progress.Model
	width       int
	height      int
	quitting    bool
	done        bool
}

type statsUpdateMsg struct {
	stats Stats
	final bool
}

type tickMsg time.Time

func (m StatsModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progressBar.Width = msg.Width - 20
		return m, nil

	case statsUpdateMsg:
		m.stats = msg.stats
		if msg.final {
			m.done = true
			return m, tea.Quit
		}
		return m, nil

	case tickMsg:
		return m, tickCmd()
	}

	return m, nil
}

func (m StatsModel) View() string {
	if m.quitting {
		return "Interrupted.\n"
	}

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#7D56F4")).
		Padding(0, 1).
		Render("DNSBLAST " + m.target)

	st := m.stats
	body := fmt.Sprintf("\nSent: %s\nReceived: %s\nReply rate: %d pps\nSend rate: %.0f pps\nRatio: %.2f%%\nRuntime: %s",
		formatNumber(st.Sent), formatNumber(st.Received), st.ReplyRate(), st.SendRate(), st.Ratio(), formatDuration(st.Elapsed))

	var bar string
	if m.total > 0 {
		bar = "\nProgress:\n" + m.progressBar.ViewAs(float64(st.Sent)/float64(m.total))
	}

	help := "\nPress q to quit"
	if m.done {
		help = "\nDone."
	}

	return lipgloss.JoinVertical(lipgloss.Left, title, body, bar, help)
}

// TUISink drives a full-screen bubbletea display. Pressing q or ctrl+c in
// the display calls onQuit.
type TUISink struct {
	p    *tea.Program
	done chan struct{}
}

func NewTUISink(target string, total uint64, onQuit func()) *TUISink {
	t := &TUISink{done: make(chan struct{})}
	t.p = tea.NewProgram(
		StatsModel{
			target:      target,
			total:       total,
			progressBar: progress.New(progress.WithDefaultGradient()),
		},
		tea.WithAltScreen(),
	)

	go func() {
		defer close(t.done)
		m, err := t.p.Run()
		if err != nil {
			appLogger.Error("UI error: %v", err)
			return
		}
		if sm, ok := m.(StatsModel); ok && sm.quitting && onQuit != nil {
			onQuit()
		}
	}()
	return t
}

func (t *TUISink) Update(st Stats) {
	t.p.Send(statsUpdateMsg{stats: st})
}

// Final pushes the closing totals and waits for the display to exit.
func (t *TUISink) Final(st Stats) {
	t.p.Send(statsUpdateMsg{stats: st, final: true})
	select {
	case <-t.done:
	case <-time.After(time.Second):
		t.p.Quit()
		<-t.done
	}
}
