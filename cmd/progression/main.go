package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

const pidFile = "progressiond.pid"

// cliOptions carries the persistent flags shared by every subcommand
type cliOptions struct {
	addr      string
	userID    string
	profileID string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:   "progression",
		Short: "Profile-scoped XP, level and streak ledger",
		Long: `Progression tracks experience points, levels and study streaks for
learners and their sub-profiles, and recommends practice sessions from
recent problem history.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", "", "daemon address (default from config)")
	root.PersistentFlags().StringVarP(&opts.userID, "user", "u", os.Getenv("PROGRESSION_USER"), "user id")
	root.PersistentFlags().StringVarP(&opts.profileID, "profile", "p", "", "profile id (empty for the personal profile)")

	root.AddCommand(
		newStartCmd(),
		newStopCmd(),
		newStatusCmd(opts),
		newLogsCmd(),
		newProgressCmd(opts),
		newAwardCmd(opts),
		newCompleteCmd(opts),
		newStreakCmd(opts),
		newPracticeCmd(opts),
		newEraseCmd(opts),
		newMCPCmd(),
		newConfigCmd(),
	)
	return root
}

// renderProgressBar creates a visual progress bar
func renderProgressBar(value float64, width int) string {
	filled := int(value * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	empty := width - filled

	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", empty) + "]"
}
