package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"zgrid/internal/api"
	"zgrid/internal/client"
)

var topCmd = &cobra.Command{
	Use:   "top [job_id]...",
	Short: "Live view of coordinator health and job states",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m := topModel{
			client: coordinatorClient(cfg),
			jobIDs: args,
			url:    cfg.Worker.CoordinatorURL,
		}
		_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(topCmd)
}

var (
	topTitleStyle  = lipgloss.NewStyle().Bold(true)
	topHeaderStyle = lipgloss.NewStyle().Faint(true)
	topErrStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	topOKStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	topBusyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

type topTickMsg time.Time

type topStatesMsg struct {
	health map[string]any
	states []api.ProcessState
	err    error
}

type topModel struct {
	client *client.Client
	jobIDs []string
	url    string

	health map[string]any
	states []api.ProcessState
	err    error
}

func (m topModel) Init() tea.Cmd {
	return tea.Batch(m.refresh, topTick())
}

func topTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return topTickMsg(t) })
}

func (m topModel) refresh() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := topStatesMsg{}
	msg.health, msg.err = m.client.Health(ctx)
	if msg.err == nil && len(m.jobIDs) > 0 {
		msg.states, msg.err = m.client.GetSimpleJobStates(ctx, m.jobIDs)
	}
	return msg
}

func (m topModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case topTickMsg:
		return m, tea.Batch(m.refresh, topTick())
	case topStatesMsg:
		m.health = msg.health
		m.states = msg.states
		m.err = msg.err
	}
	return m, nil
}

func (m topModel) View() string {
	var b strings.Builder
	b.WriteString(topTitleStyle.Render("zgrid coordinator — "+m.url) + "\n\n")

	if m.err != nil {
		b.WriteString(topErrStyle.Render("unreachable: "+m.err.Error()) + "\n")
		return b.String()
	}

	if m.health != nil {
		b.WriteString(fmt.Sprintf("simple jobs: %v   grid jobs: %v   unassigned tasks: %v   up: %vs\n\n",
			m.health["simple_jobs"], m.health["grid_jobs"],
			m.health["unassigned_tasks"], m.health["uptime_seconds"]))
	}

	if len(m.jobIDs) > 0 {
		b.WriteString(topHeaderStyle.Render(fmt.Sprintf("%-30s %-22s %-8s", "JOB", "STATE", "PID")) + "\n")
		for i, s := range m.states {
			line := fmt.Sprintf("%-30s %-22s %-8d", m.jobIDs[i], s.State, s.PID)
			switch {
			case s.State == api.StateSucceeded:
				line = topOKStyle.Render(line)
			case s.State.Terminal():
				line = topErrStyle.Render(line)
			case s.State == api.StateRunning || s.State == api.StateAssigned:
				line = topBusyStyle.Render(line)
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(topHeaderStyle.Render("q to quit"))
	return b.String()
}
