package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ytdl-web/internal/download"
	"ytdl-web/internal/model"
)

const watchPollInterval = 250 * time.Millisecond

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	watchMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	watchOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	watchPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

var errWatchInterrupted = errors.New("download interrupted")

type watchTickMsg struct{}

type watchDoneMsg struct{}

type watchModel struct {
	key   string
	fetch func() (model.Progress, bool)
	done  <-chan struct{}

	spinner spinner.Model
	bar     progress.Model

	state       model.Progress
	seen        bool
	finished    bool
	interrupted bool
}

func newWatchModel(key string, fetch func() (model.Progress, bool), done <-chan struct{}) watchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 48
	return watchModel{key: key, fetch: fetch, done: done, spinner: sp, bar: bar}
}

func watchTick() tea.Cmd {
	return tea.Tick(watchPollInterval, func(time.Time) tea.Msg {
		return watchTickMsg{}
	})
}

func waitDone(done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-done
		return watchDoneMsg{}
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, watchTick(), waitDone(m.done))
}

func (m watchModel) refresh() watchModel {
	if p, ok := m.fetch(); ok {
		m.state = p
		m.seen = true
	}
	return m
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.interrupted = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = max(min(msg.Width-8, 72), 10)
	case watchTickMsg:
		return m.refresh(), watchTick()
	case watchDoneMsg:
		m = m.refresh()
		m.finished = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(watchTitleStyle.Render("ytdl-web") + " " + watchMutedStyle.Render(m.key))
	b.WriteString("\n\n")

	switch {
	case !m.seen && !m.finished:
		b.WriteString(m.spinner.View() + " waiting for worker output")
	case m.state.Finished:
		b.WriteString(m.bar.ViewAs(1) + "\n")
		b.WriteString(watchOKStyle.Render("done") + " " + describeProgress(m.state))
	default:
		b.WriteString(m.bar.ViewAs(overallFraction(m.state)) + "\n")
		label := m.state.CurrentVideoTitle
		if label == "" {
			label = "preparing next item"
		}
		b.WriteString(m.spinner.View() + " " + label + "\n")
		b.WriteString(watchMutedStyle.Render(fmt.Sprintf(
			"items %d/%d  item %.0f%%  eta %s  total eta %s",
			m.state.DownloadedVideos, m.state.TotalVideos,
			m.state.CurrentVideoProgress*100,
			formatETA(float64(m.state.CurrentVideoETA)),
			formatETA(m.state.TotalETA),
		)))
	}
	if !m.finished {
		b.WriteString("\n\n" + watchMutedStyle.Render("q: stop download"))
	}
	return watchPanelStyle.Render(b.String()) + "\n"
}

func watchTUI(ctx context.Context, svc *download.Service, key string) error {
	done := make(chan struct{})
	go func() {
		_ = svc.Wait(ctx, key)
		close(done)
	}()

	fetch := func() (model.Progress, bool) {
		p, ok, err := svc.Progress(context.Background(), key)
		return p, ok && err == nil
	}
	p := tea.NewProgram(newWatchModel(key, fetch, done), tea.WithContext(ctx))
	finalModel, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
			return errWatchInterrupted
		}
		return err
	}
	if fm, ok := finalModel.(watchModel); ok && fm.interrupted {
		return errWatchInterrupted
	}
	return nil
}
