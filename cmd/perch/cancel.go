package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelSession string

var cancelCmd = &cobra.Command{
	Use:   "cancel [tool-use-id]",
	Short: "Dismiss a pending permission request without a decision",
	Long: `Cancel closes a held permission connection without writing a decision,
letting the assistant fall back to its own prompt.

Given a tool-use-id it targets that exact request. With --session it
dismisses every pending request for that session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)

	cancelCmd.Flags().StringVar(&cancelSession, "session", "", "dismiss all pending requests for this session")
}

func runCancel(cmd *cobra.Command, args []string) error {
	info := discoverRunInfo()
	switch {
	case len(args) == 1:
		return controlPost(info.ControlAddr, "/v1/permissions/"+args[0]+"/cancel", nil)
	case cancelSession != "":
		return controlPost(info.ControlAddr, "/v1/sessions/"+cancelSession+"/cancel", nil)
	default:
		return fmt.Errorf("provide a tool-use-id argument or --session")
	}
}
