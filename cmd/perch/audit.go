package main

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/spf13/cobra"
)

var (
	auditSession  string
	auditTool     string
	auditDecision string
	auditLimit    int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recorded permission decisions",
	RunE:  runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVar(&auditSession, "session", "", "only decisions for this session")
	auditCmd.Flags().StringVar(&auditTool, "tool", "", "only decisions for this tool")
	auditCmd.Flags().StringVar(&auditDecision, "decision", "", "only this decision (allow, deny, ask)")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum entries to show")
}

type auditView struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	ToolUseID string    `json:"tool_use_id"`
	Tool      string    `json:"tool"`
	Decision  string    `json:"decision"`
	Reason    string    `json:"reason,omitempty"`
}

func runAudit(cmd *cobra.Command, args []string) error {
	query := url.Values{}
	if auditSession != "" {
		query.Set("session_id", auditSession)
	}
	if auditTool != "" {
		query.Set("tool", auditTool)
	}
	if auditDecision != "" {
		query.Set("decision", auditDecision)
	}
	if auditLimit > 0 {
		query.Set("limit", strconv.Itoa(auditLimit))
	}

	path := "/v1/audit"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	info := discoverRunInfo()
	var result struct {
		Entries []auditView `json:"entries"`
	}
	if err := controlGet(info.ControlAddr, path, &result); err != nil {
		return err
	}
	entries := result.Entries

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No audit entries")
		return nil
	}

	styles := newStatusStyles()
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styles.border).
		StyleFunc(styles.styleFunc).
		Headers("Time", "Session", "Tool", "Decision", "Reason")

	for _, e := range entries {
		t.Row(
			e.Timestamp.Local().Format("Jan 02 15:04:05"),
			truncate(e.SessionID, 16),
			truncate(e.Tool, 16),
			e.Decision,
			truncate(e.Reason, 32),
		)
	}
	fmt.Fprintln(out, t.String())
	return nil
}
