package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/harunnryd/perch/internal/client"
	"github.com/harunnryd/perch/internal/hook"
)

var (
	sendSessionID string
	sendEvent     string
	sendStatus    string
	sendTool      string
	sendToolInput string
	sendToolUseID string
	sendMessage   string
	sendNotifType string
	sendAwait     bool
	sendTimeout   time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Emit one lifecycle event to the perch daemon",
	Long: `Send delivers a single JSON event over the daemon's unix socket.
It is the command hook scripts invoke on each assistant lifecycle event.

With --await the command holds the connection open and prints the decision
once a human responds; this is how permission_request events are delivered.`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVar(&sendSessionID, "session", "", "session identifier (required)")
	sendCmd.Flags().StringVar(&sendEvent, "event", "", "event kind, e.g. pre_tool_use, permission_request (required)")
	sendCmd.Flags().StringVar(&sendStatus, "status", "", "event status, e.g. awaiting_approval")
	sendCmd.Flags().StringVar(&sendTool, "tool", "", "tool name the event concerns")
	sendCmd.Flags().StringVar(&sendToolInput, "tool-input", "", "tool input as a JSON object")
	sendCmd.Flags().StringVar(&sendToolUseID, "tool-use-id", "", "tool use identifier (generated for permission events when omitted)")
	sendCmd.Flags().StringVar(&sendMessage, "message", "", "notification message text")
	sendCmd.Flags().StringVar(&sendNotifType, "notification-type", "", "notification subtype")
	sendCmd.Flags().BoolVar(&sendAwait, "await", false, "hold the connection and print the decision")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 0, "how long to wait for a decision (0 waits indefinitely)")

	_ = sendCmd.MarkFlagRequired("session")
	_ = sendCmd.MarkFlagRequired("event")
}

func runSend(cmd *cobra.Command, args []string) error {
	evt, err := buildEvent()
	if err != nil {
		return err
	}

	info := discoverRunInfo()
	c := client.New(info.SocketPath)

	ctx := cmd.Context()
	if sendAwait || evt.ExpectsResponse() {
		if sendTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, sendTimeout)
			defer cancel()
		}

		resp, err := c.RequestPermission(ctx, evt)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(resp)
	}

	return c.Notify(ctx, evt)
}

func buildEvent() (hook.Event, error) {
	evt := hook.Event{
		SessionID:        sendSessionID,
		Kind:             hook.Kind(sendEvent),
		Status:           sendStatus,
		Tool:             sendTool,
		ToolUseID:        sendToolUseID,
		Message:          sendMessage,
		NotificationType: sendNotifType,
		PID:              os.Getpid(),
	}

	if cwd, err := os.Getwd(); err == nil {
		evt.Cwd = cwd
	}
	if tty := os.Getenv("TTY"); tty != "" {
		evt.TTY = tty
	}

	if sendToolInput != "" {
		var input map[string]any
		if err := json.Unmarshal([]byte(sendToolInput), &input); err != nil {
			return hook.Event{}, fmt.Errorf("parse --tool-input: %w", err)
		}
		evt.ToolInput = input
	}

	// Permission events carry an id so correlation survives even when no
	// matching pre_tool_use was observed.
	if evt.Kind == hook.KindPermissionRequest && evt.ToolUseID == "" {
		evt.ToolUseID = "toolu_" + strings.ToLower(ulid.Make().String())
	}
	if evt.Kind == hook.KindPermissionRequest && evt.Status == "" {
		evt.Status = hook.StatusAwaitingApproval
	}

	return evt, nil
}
