package main

import (
	"fmt"
	"strconv"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show active sessions and pending permission requests",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type sessionView struct {
	SessionID string    `json:"session_id"`
	Cwd       string    `json:"cwd,omitempty"`
	TTY       string    `json:"tty,omitempty"`
	PID       int       `json:"pid,omitempty"`
	Phase     string    `json:"phase"`
	Tool      string    `json:"tool,omitempty"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type permissionView struct {
	SessionID  string    `json:"session_id"`
	ToolUseID  string    `json:"tool_use_id"`
	Tool       string    `json:"tool"`
	ReceivedAt time.Time `json:"received_at"`
}

type healthView struct {
	Status        string `json:"status"`
	UptimeSeconds int    `json:"uptime_seconds"`
	Sessions      int    `json:"sessions"`
	Pending       int    `json:"pending"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	info := discoverRunInfo()

	var health healthView
	if err := controlGet(info.ControlAddr, "/v1/health", &health); err != nil {
		return err
	}

	var sessionList struct {
		Sessions []sessionView `json:"sessions"`
	}
	if err := controlGet(info.ControlAddr, "/v1/sessions", &sessionList); err != nil {
		return err
	}

	var pendingList struct {
		Pending []permissionView `json:"pending"`
	}
	if err := controlGet(info.ControlAddr, "/v1/pending", &pendingList); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	uptime := (time.Duration(health.UptimeSeconds) * time.Second).String()
	fmt.Fprintf(out, "perch daemon: %s (up %s, %d sessions, %d pending)\n\n",
		health.Status, uptime, health.Sessions, health.Pending)

	fmt.Fprintln(out, renderSessionsTable(sessionList.Sessions))
	if len(pendingList.Pending) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderPendingTable(pendingList.Pending))
	}
	return nil
}

type statusStyles struct {
	header lipgloss.Style
	odd    lipgloss.Style
	even   lipgloss.Style
	border lipgloss.Style
}

func newStatusStyles() statusStyles {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")

	return statusStyles{
		header: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		odd: lipgloss.NewStyle().
			Foreground(gray).
			Padding(0, 1),
		even: lipgloss.NewStyle().
			Foreground(lightGray).
			Padding(0, 1),
		border: lipgloss.NewStyle().
			Foreground(purple),
	}
}

func (s statusStyles) styleFunc(row, col int) lipgloss.Style {
	switch {
	case row == table.HeaderRow:
		return s.header
	case row%2 == 0:
		return s.even
	default:
		return s.odd
	}
}

func renderSessionsTable(sessions []sessionView) string {
	if len(sessions) == 0 {
		return "No active sessions"
	}

	styles := newStatusStyles()
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styles.border).
		StyleFunc(styles.styleFunc).
		Headers("Session", "Phase", "Tool", "PID", "Cwd", "Updated")

	for _, s := range sessions {
		t.Row(
			truncate(s.SessionID, 16),
			s.Phase,
			truncate(s.Tool, 16),
			strconv.Itoa(s.PID),
			truncate(s.Cwd, 32),
			s.UpdatedAt.Local().Format("15:04:05"),
		)
	}
	return t.String()
}

func renderPendingTable(pending []permissionView) string {
	styles := newStatusStyles()
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styles.border).
		StyleFunc(styles.styleFunc).
		Headers("Tool Use ID", "Session", "Tool", "Waiting Since")

	for _, p := range pending {
		t.Row(
			truncate(p.ToolUseID, 28),
			truncate(p.SessionID, 16),
			truncate(p.Tool, 16),
			p.ReceivedAt.Local().Format("15:04:05"),
		)
	}
	return t.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
