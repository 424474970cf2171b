package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mailwatch/viewer"
)

var emailsCmd = &cobra.Command{
	Use:   "emails",
	Short: "Inspect or clear the email history",
}

var emailsLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the latest classified emails once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		r := viewer.NewReconciler(api, api.Sensitive(), api.Watch(), viewer.Options{
			Count:          count,
			RequestTimeout: timeout,
		})
		if err := r.PollEmails(cmd.Context()); err != nil {
			return fmt.Errorf("fetching emails: %w", err)
		}
		return viewer.NewRenderer(cmd.OutOrStdout(), false).Render(r.Snapshot())
	},
}

var emailsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the backend email history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d := viewer.NewDispatcher(newCommandReconciler(), nil)
		if err := d.ClearEmails(cmd.Context()); err != nil {
			return fmt.Errorf("clearing emails: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Email history cleared")
		return nil
	},
}

func init() {
	emailsLatestCmd.Flags().Int("count", viewer.DefaultCount, "number of emails to show")

	emailsCmd.AddCommand(emailsLatestCmd)
	emailsCmd.AddCommand(emailsClearCmd)
}
