package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harunnryd/perch/internal/hook"
)

var (
	respondSession string
	respondReason  string
)

var respondCmd = &cobra.Command{
	Use:   "respond <decision> [tool-use-id]",
	Short: "Deliver a decision to a pending permission request",
	Long: `Respond resolves a pending permission request with allow, deny, or ask.

Given a tool-use-id it targets that exact request. With --session it
resolves the newest pending request for that session instead.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRespond,
}

func init() {
	rootCmd.AddCommand(respondCmd)

	respondCmd.Flags().StringVar(&respondSession, "session", "", "resolve the newest pending request for this session")
	respondCmd.Flags().StringVar(&respondReason, "reason", "", "reason to attach to the decision")
}

func runRespond(cmd *cobra.Command, args []string) error {
	decision, err := hook.ParseDecision(args[0])
	if err != nil {
		return err
	}

	payload := map[string]string{
		"decision": string(decision),
		"reason":   respondReason,
	}

	info := discoverRunInfo()
	switch {
	case len(args) == 2:
		return controlPost(info.ControlAddr, "/v1/permissions/"+args[1]+"/respond", payload)
	case respondSession != "":
		return controlPost(info.ControlAddr, "/v1/sessions/"+respondSession+"/respond", payload)
	default:
		return fmt.Errorf("provide a tool-use-id argument or --session")
	}
}
