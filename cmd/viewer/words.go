package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mailwatch/models"
	"mailwatch/viewer"
)

var wordsCmd = &cobra.Command{
	Use:   "words",
	Short: "Manage the sensitive and watch word lists",
}

var wordsListCmd = &cobra.Command{
	Use:       "list [sensitive|watch]",
	Short:     "Show one or both word lists",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(models.SensitiveList), string(models.WatchList)},
	RunE: func(cmd *cobra.Command, args []string) error {
		lists := []models.WordList{models.SensitiveList, models.WatchList}
		if len(args) == 1 {
			list, err := parseList(args[0])
			if err != nil {
				return err
			}
			lists = []models.WordList{list}
		}

		r := newCommandReconciler()
		renderer := viewer.NewRenderer(cmd.OutOrStdout(), false)
		for _, list := range lists {
			if err := r.RefreshWords(cmd.Context(), list); err != nil {
				return fmt.Errorf("fetching %s words: %w", list, err)
			}
			snap := r.Snapshot()
			if err := renderer.RenderWords(list, *snap.List(list)); err != nil {
				return err
			}
		}
		return nil
	},
}

var wordsAddCmd = &cobra.Command{
	Use:   "add <sensitive|watch> <word>",
	Short: "Add a word to a list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(cmd, args, viewer.AddField)
	},
}

var wordsRemoveCmd = &cobra.Command{
	Use:   "remove <sensitive|watch> <word>",
	Short: "Remove a word from a list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(cmd, args, viewer.RemoveField)
	},
}

var wordsResetCmd = &cobra.Command{
	Use:   "reset <sensitive|watch>",
	Short: "Remove every custom word from a list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := parseList(args[0])
		if err != nil {
			return err
		}
		yes, _ := cmd.Flags().GetBool("yes")

		confirm := func(prompt string) bool {
			if yes {
				return true
			}
			return promptYesNo(os.Stdin, cmd.ErrOrStderr(), prompt)
		}

		r := newCommandReconciler()
		d := viewer.NewDispatcher(r, confirm)
		err = d.Reset(cmd.Context(), list)
		if errors.Is(err, viewer.ErrNotConfirmed) {
			fmt.Fprintln(cmd.OutOrStdout(), "Reset cancelled")
			return nil
		}
		return reportMutation(cmd, r, list, err)
	},
}

func runMutation(cmd *cobra.Command, args []string, field viewer.Field) error {
	list, err := parseList(args[0])
	if err != nil {
		return err
	}

	r := newCommandReconciler()
	d := viewer.NewDispatcher(r, nil)
	d.SetInput(list, field, args[1])
	if field == viewer.RemoveField {
		err = d.Remove(cmd.Context(), list)
	} else {
		err = d.Add(cmd.Context(), list)
	}
	return reportMutation(cmd, r, list, err)
}

func reportMutation(cmd *cobra.Command, r *viewer.Reconciler, list models.WordList, err error) error {
	snap := r.Snapshot()
	if snap.Notice != "" {
		fmt.Fprintln(cmd.OutOrStdout(), snap.Notice)
	}
	if err != nil {
		return err
	}
	return viewer.NewRenderer(cmd.OutOrStdout(), false).RenderWords(list, *snap.List(list))
}

func newCommandReconciler() *viewer.Reconciler {
	return viewer.NewReconciler(api, api.Sensitive(), api.Watch(), viewer.Options{RequestTimeout: timeout})
}

func parseList(arg string) (models.WordList, error) {
	list := models.WordList(strings.ToLower(strings.TrimSpace(arg)))
	if !list.Valid() {
		return "", fmt.Errorf("unknown list %q (want sensitive or watch)", arg)
	}
	return list, nil
}

// promptYesNo asks on out and reads the answer from in. Non-interactive input
// declines.
func promptYesNo(in *os.File, out io.Writer, prompt string) bool {
	if !term.IsTerminal(int(in.Fd())) {
		return false
	}
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func init() {
	wordsResetCmd.Flags().Bool("yes", false, "skip the confirmation prompt")

	wordsCmd.AddCommand(wordsListCmd)
	wordsCmd.AddCommand(wordsAddCmd)
	wordsCmd.AddCommand(wordsRemoveCmd)
	wordsCmd.AddCommand(wordsResetCmd)
}
