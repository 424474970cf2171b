package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mailwatch/client"
	"mailwatch/viewer"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the latest classified emails",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		wordsInterval, _ := cmd.Flags().GetDuration("words-interval")
		count, _ := cmd.Flags().GetInt("count")
		noRelay, _ := cmd.Flags().GetBool("no-relay")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var events <-chan []byte
		var relayStatus func() bool
		if !noRelay {
			rc, err := client.DialRelay(ctx, resolveRelayURL())
			if err != nil {
				logrus.WithError(err).Warn("Relay unavailable, polling only")
			} else {
				defer rc.Close()
				events = rc.Events()
				relayStatus = rc.Connected
			}
		}

		out := cmd.OutOrStdout()
		renderer := viewer.NewRenderer(out, out == os.Stdout && viewer.ShouldUseColor(os.Stdout))
		renderer.Clear = out == os.Stdout && viewer.ShouldUseColor(os.Stdout)

		r := viewer.NewReconciler(api, api.Sensitive(), api.Watch(), viewer.Options{
			Count:         count,
			Interval:      interval,
			WordsInterval: wordsInterval,
			Events:        events,
			RelayStatus:   relayStatus,
			OnChange: func(s viewer.State) {
				_ = renderer.Render(s)
			},
		})

		err := r.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// resolveRelayURL derives ws://host/ws from the API URL when --relay is empty.
func resolveRelayURL() string {
	if relayURL != "" {
		return relayURL
	}
	u := strings.TrimRight(api.BaseURL(), "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

func init() {
	watchCmd.Flags().Duration("interval", viewer.DefaultInterval, "email poll interval")
	watchCmd.Flags().Duration("words-interval", viewer.DefaultWordsInterval, "word list refresh interval")
	watchCmd.Flags().Int("count", viewer.DefaultCount, "number of emails to show")
	watchCmd.Flags().Bool("no-relay", false, "do not connect to the relay")
}
