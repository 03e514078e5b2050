package cli

import (
	"context"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/client"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/service"
)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// jobUpdateMsg carries a job snapshot from the watch stream.
type jobUpdateMsg struct {
	job models.HarvestJob
}

// streamEndMsg is sent when the watch stream closes.
type streamEndMsg struct {
	err error
}

// progressModel is the bubbletea model for job progress.
type progressModel struct {
	updates  <-chan models.HarvestJob
	errc     <-chan error
	jobID    string
	job      models.HarvestJob
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(job models.HarvestJob, updates <-chan models.HarvestJob, errc <-chan error) progressModel {
	return progressModel{
		updates:  updates,
		errc:     errc,
		jobID:    job.ID,
		job:      job,
		progress: progress.New(progress.WithDefaultBlend(), progress.WithWidth(40)),
		theme:    defaultTheme,
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.next(), m.progress.Init())
}

// next waits for the following snapshot on the watch stream.
func (m progressModel) next() tea.Cmd {
	return func() tea.Msg {
		job, ok := <-m.updates
		if !ok {
			return streamEndMsg{err: <-m.errc}
		}
		return jobUpdateMsg{job: job}
	}
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case jobUpdateMsg:
		m.job = msg.job
		return m, m.next()

	case streamEndMsg:
		m.done = true
		switch {
		case msg.err != nil:
			m.err = fmt.Errorf("watch job: %w", msg.err)
		case m.job.Status == service.JobStatusFailed:
			m.err = fmt.Errorf("job failed with unknown error")
			if m.job.Error != nil {
				m.err = fmt.Errorf("%s", *m.job.Error)
			}
		}
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}

	var pct float64
	if m.job.Total > 0 {
		pct = float64(m.job.Progress) / float64(m.job.Total)
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.job.Status))
	counts := fmt.Sprintf("%d/%d datasets", m.job.Progress, m.job.Total)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	return fmt.Sprintf("%s %s %s\n%s\n", status, m.progress.ViewAs(pct), counts, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nJob %s continues in background.\nUse 'stadtzhharvest jobs %s' to check status.\n",
			m.jobID, m.jobID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Job failed: %s\n", m.err))
	}

	var b strings.Builder
	b.WriteString(m.theme.completedStyle().Render("✓ Completed") + "\n\n")
	writeStats(&b, m.job.Stats)
	if m.job.Stats.Errored > 0 {
		b.WriteString(m.theme.errorStyle().Render(
			fmt.Sprintf("\nUse 'stadtzhharvest jobs %s' to see the errors.\n", m.jobID)))
	}
	return b.String()
}

// writeStats renders the outcome counts of a run.
func writeStats(b *strings.Builder, s models.RunStats) {
	fmt.Fprintf(b, "  Added:         %d\n", s.Added)
	fmt.Fprintf(b, "  Updated:       %d\n", s.Updated)
	fmt.Fprintf(b, "  Not modified:  %d\n", s.NotModified)
	fmt.Fprintf(b, "  Deleted:       %d\n", s.Deleted)
	fmt.Fprintf(b, "  Errored:       %d\n", s.Errored)
}

// RunJobProgress runs the interactive progress UI for a job.
// Returns nil on success or Ctrl+C (background), error on job failure.
func RunJobProgress(ctx context.Context, c *client.Client, job *models.HarvestJob) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan models.HarvestJob, 16)
	errc := make(chan error, 1)
	go func() {
		err := c.Watch(ctx, job.ID, func(j models.HarvestJob) error {
			select {
			case updates <- j:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		errc <- err
		close(updates)
	}()

	p := tea.NewProgram(newProgressModel(*job, updates, errc))
	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}
	return nil
}
