package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mailwatch/client"
	"mailwatch/models"
)

var publishCmd = &cobra.Command{
	Use:   "publish <json>",
	Short: "Send one JSON payload to every other relay peer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := []byte(args[0])
		if _, err := models.ParseEnvelope(payload); err != nil {
			// Untyped payloads are still relayed; only the hub's framing rule
			// (valid JSON) is enforced.
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		}

		rc, err := client.DialRelay(cmd.Context(), resolveRelayURL(), client.WithReconnectDelay(0))
		if err != nil {
			return err
		}
		defer rc.Close()

		if err := rc.Publish(payload); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Published")
		return nil
	},
}
