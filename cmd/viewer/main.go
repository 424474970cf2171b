package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mailwatch/client"
	"mailwatch/utils"
	"mailwatch/viewer"
)

var (
	apiURL   string
	relayURL string
	logLevel string
	timeout  time.Duration

	api *client.HTTPClient
)

func defaultAPIURL() string {
	if s := os.Getenv("MAILWATCH_API_URL"); s != "" {
		return s
	}
	return "http://localhost:3000"
}

func defaultRelayURL() string {
	return os.Getenv("MAILWATCH_RELAY_URL")
}

var rootCmd = &cobra.Command{
	Use:           "viewer",
	Short:         "Terminal viewer for classified emails and moderation word lists",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		utils.InitLogger(logLevel, "text")
		logrus.SetOutput(os.Stderr)
		api = client.NewHTTPClient(apiURL).WithTimeout(timeout)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if api != nil {
			_ = api.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultAPIURL(), "backend base URL")
	rootCmd.PersistentFlags().StringVar(&relayURL, "relay", defaultRelayURL(), "relay WebSocket URL (empty derives it from --api)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", viewer.DefaultRequestTimeout, "per-request timeout")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(wordsCmd)
	rootCmd.AddCommand(emailsCmd)
	rootCmd.AddCommand(publishCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
