package main

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/progression/internal/domain"
)

type progressView struct {
	UserID        string `json:"user_id"`
	ProfileID     string `json:"profile_id"`
	TotalXP       int    `json:"total_xp"`
	Level         int    `json:"level"`
	XPToNextLevel int    `json:"xp_to_next_level"`
	History       []struct {
		Date   string `json:"date"`
		Delta  int    `json:"delta"`
		Reason string `json:"reason"`
	} `json:"history"`
	Exists   bool `json:"exists"`
	Degraded bool `json:"degraded"`
}

type awardView struct {
	XPGained      int  `json:"xp_gained"`
	NewTotal      int  `json:"new_total"`
	NewLevel      int  `json:"new_level"`
	PreviousLevel int  `json:"previous_level"`
	LeveledUp     bool `json:"leveled_up"`
}

type streakView struct {
	CurrentStreak int     `json:"current_streak"`
	LongestStreak int     `json:"longest_streak"`
	LastStudyDate *string `json:"last_study_date"`
	Outcome       string  `json:"outcome"`
}

func newProgressCmd(opts *cliOptions) *cobra.Command {
	var historyLimit int
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show XP, level and recent awards for a profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(opts)
			if err != nil {
				return err
			}
			var p progressView
			if err := client.get("/v1/progress", opts.identityQuery(), &p); err != nil {
				return fmt.Errorf("get progress: %w", err)
			}
			printProgress(cmd.OutOrStdout(), &p, historyLimit)
			return nil
		},
	}
	cmd.Flags().IntVar(&historyLimit, "history", 10, "number of recent awards to show")
	return cmd
}

func newAwardCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "award",
		Short: "Award experience points",
	}

	var hints int
	problem := &cobra.Command{
		Use:   "problem <difficulty>",
		Short: "Award XP for a solved problem (elementary, middle, high, advanced)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := domain.ParseDifficulty(args[0]); err != nil {
				return err
			}
			body := opts.identityBody()
			body["difficulty"] = args[0]
			body["hints_used"] = hints
			return postAward(cmd, opts, "/v1/xp/problem", body)
		},
	}
	problem.Flags().IntVar(&hints, "hints", 0, "hints used while solving")

	var first bool
	login := &cobra.Command{
		Use:   "login",
		Short: "Award the daily login bonus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := opts.identityBody()
			body["first_login"] = first
			return postAward(cmd, opts, "/v1/xp/login", body)
		},
	}
	login.Flags().BoolVar(&first, "first", false, "award the first-login bonus")

	var reason string
	xp := &cobra.Command{
		Use:   "xp <amount>",
		Short: "Award an arbitrary amount of XP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.Atoi(args[0])
			if err != nil || amount < 0 {
				return fmt.Errorf("amount must be a non-negative integer: %q", args[0])
			}
			body := opts.identityBody()
			body["xp"] = amount
			body["reason"] = reason
			return postAward(cmd, opts, "/v1/xp/award", body)
		},
	}
	xp.Flags().StringVar(&reason, "reason", "manual", "reason recorded in the award history")

	cmd.AddCommand(problem, login, xp)
	return cmd
}

func newCompleteCmd(opts *cliOptions) *cobra.Command {
	var (
		attemptID string
		solved    bool
		hints     int
	)
	cmd := &cobra.Command{
		Use:   "complete <subject> <difficulty>",
		Short: "Record a problem attempt and award XP if it was solved",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(opts)
			if err != nil {
				return err
			}
			body := opts.identityBody()
			body["subject"] = args[0]
			body["difficulty"] = args[1]
			body["solved"] = solved
			body["hints_used"] = hints
			if attemptID != "" {
				body["id"] = attemptID
			}

			var outcome struct {
				AttemptID string      `json:"attempt_id"`
				Award     *awardView  `json:"award"`
				Streak    *streakView `json:"streak"`
			}
			if err := client.post("/v1/problems/complete", body, &outcome); err != nil {
				return fmt.Errorf("complete problem: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Recorded attempt %s\n", outcome.AttemptID)
			if outcome.Award != nil {
				printAward(out, outcome.Award)
			}
			if outcome.Streak != nil {
				printStreak(out, outcome.Streak)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&attemptID, "id", "", "attempt id (generated when empty)")
	cmd.Flags().BoolVar(&solved, "solved", true, "whether the problem was solved")
	cmd.Flags().IntVar(&hints, "hints", 0, "hints used")
	return cmd
}

func newStreakCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streak",
		Short: "Show the study streak",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(opts)
			if err != nil {
				return err
			}
			var s streakView
			if err := client.get("/v1/streak", opts.identityQuery(), &s); err != nil {
				return fmt.Errorf("get streak: %w", err)
			}
			printStreak(cmd.OutOrStdout(), &s)
			return nil
		},
	}

	var date string
	study := &cobra.Command{
		Use:   "study",
		Short: "Record a study day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if date != "" {
				if _, err := time.Parse(time.DateOnly, date); err != nil {
					return fmt.Errorf("date must be YYYY-MM-DD: %q", date)
				}
			}
			client, err := connect(opts)
			if err != nil {
				return err
			}
			body := opts.identityBody()
			if date != "" {
				body["date"] = date
			}
			var s streakView
			if err := client.post("/v1/streak/study", body, &s); err != nil {
				return fmt.Errorf("record study: %w", err)
			}
			printStreak(cmd.OutOrStdout(), &s)
			return nil
		},
	}
	study.Flags().StringVar(&date, "date", "", "study date as YYYY-MM-DD (default today)")

	cmd.AddCommand(study)
	return cmd
}

func newPracticeCmd(opts *cliOptions) *cobra.Command {
	var (
		sessionType string
		count       int
	)
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Recommend a practice session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(opts)
			if err != nil {
				return err
			}
			q := opts.identityQuery()
			q.Set("type", sessionType)
			q.Set("count", strconv.Itoa(count))

			var plan struct {
				Type                  string `json:"type"`
				RecommendedDifficulty string `json:"recommended_difficulty"`
				Level                 int    `json:"level"`
				Problems              []struct {
					Subject     string `json:"subject"`
					Difficulty  string `json:"difficulty"`
					EstimatedXP int    `json:"estimated_xp"`
					Focus       string `json:"focus"`
				} `json:"problems"`
				TotalEstimatedXP int      `json:"total_estimated_xp"`
				WeakAreas        []string `json:"weak_areas"`
				StrongAreas      []string `json:"strong_areas"`
				ColdStart        bool     `json:"cold_start"`
				Degraded         bool     `json:"degraded"`
			}
			if err := client.get("/v1/practice", q, &plan); err != nil {
				return fmt.Errorf("get practice session: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s session at level %d (%s)\n", plan.Type, plan.Level, plan.RecommendedDifficulty)
			for i, p := range plan.Problems {
				fmt.Fprintf(out, "  %2d. %-20s %-10s %-9s +%d XP\n", i+1, p.Subject, p.Difficulty, p.Focus, p.EstimatedXP)
			}
			fmt.Fprintf(out, "Estimated total: %d XP\n", plan.TotalEstimatedXP)
			if len(plan.WeakAreas) > 0 {
				fmt.Fprintf(out, "Weak areas:   %v\n", plan.WeakAreas)
			}
			if len(plan.StrongAreas) > 0 {
				fmt.Fprintf(out, "Strong areas: %v\n", plan.StrongAreas)
			}
			if plan.ColdStart {
				fmt.Fprintln(out, "No history yet; using the default rotation")
			}
			if plan.Degraded {
				fmt.Fprintln(out, "Storage unavailable; showing a default plan")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionType, "type", "t", "balanced", "session type (weakness, strength, challenge, balanced)")
	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of problems")

	perf := &cobra.Command{
		Use:   "performance",
		Short: "Show per-subject success rates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(opts)
			if err != nil {
				return err
			}
			var report struct {
				TotalAttempts int     `json:"total_attempts"`
				OverallRate   float64 `json:"overall_rate"`
				Subjects      []struct {
					Subject     string  `json:"subject"`
					Attempts    int     `json:"attempts"`
					SuccessRate float64 `json:"success_rate"`
				} `json:"subjects"`
				RecommendedDifficulty string `json:"recommended_difficulty"`
			}
			if err := client.get("/v1/practice/performance", opts.identityQuery(), &report); err != nil {
				return fmt.Errorf("get performance: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Performance")
			fmt.Fprintln(out, "===========")
			fmt.Fprintf(out, "Attempts:      %d\n", report.TotalAttempts)
			fmt.Fprintf(out, "Success rate:  %.0f%%\n", report.OverallRate*100)
			fmt.Fprintf(out, "Next tier:     %s\n", report.RecommendedDifficulty)
			for _, s := range report.Subjects {
				fmt.Fprintf(out, "%-20s %s %.0f%% (%d attempts)\n",
					s.Subject, renderProgressBar(s.SuccessRate, 20), s.SuccessRate*100, s.Attempts)
			}
			return nil
		},
	}
	cmd.AddCommand(perf)
	return cmd
}

func newEraseCmd(opts *cliOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Delete all progress of a user across every profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireUser(); err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("refusing to erase %q without --yes", opts.userID)
			}
			client, err := newDaemonClient(opts.addr)
			if err != nil {
				return err
			}
			var res struct {
				XPRecords       int64 `json:"xp_records"`
				StreakRecords   int64 `json:"streak_records"`
				Owners          int64 `json:"owners"`
				ProblemAttempts int64 `json:"problem_attempts"`
			}
			if err := client.delete("/v1/users/"+url.PathEscape(opts.userID)+"/progress", &res); err != nil {
				return fmt.Errorf("erase progress: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Erased %s: %d xp, %d streak, %d owner, %d attempt records\n",
				opts.userID, res.XPRecords, res.StreakRecords, res.Owners, res.ProblemAttempts)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm erasure")
	return cmd
}

func connect(opts *cliOptions) (*daemonClient, error) {
	if err := opts.requireUser(); err != nil {
		return nil, err
	}
	return newDaemonClient(opts.addr)
}

func postAward(cmd *cobra.Command, opts *cliOptions, path string, body map[string]interface{}) error {
	client, err := connect(opts)
	if err != nil {
		return err
	}
	var a awardView
	if err := client.post(path, body, &a); err != nil {
		return fmt.Errorf("award xp: %w", err)
	}
	printAward(cmd.OutOrStdout(), &a)
	return nil
}

func printProgress(out io.Writer, p *progressView, historyLimit int) {
	name := p.UserID
	if p.ProfileID != "" {
		name += "/" + p.ProfileID
	}
	fmt.Fprintf(out, "Progress for %s\n", name)
	fmt.Fprintf(out, "Level %d  %d XP  (%d to next level)\n", p.Level, p.TotalXP, p.XPToNextLevel)

	if p.Degraded {
		fmt.Fprintln(out, "Storage unavailable; showing defaults")
		return
	}
	if !p.Exists {
		fmt.Fprintln(out, "No XP earned yet")
		return
	}

	start := 0
	if historyLimit >= 0 && len(p.History) > historyLimit {
		start = len(p.History) - historyLimit
	}
	for _, h := range p.History[start:] {
		fmt.Fprintf(out, "  %s  %+5d  %s\n", h.Date, h.Delta, h.Reason)
	}
}

func printAward(out io.Writer, a *awardView) {
	if a.LeveledUp {
		fmt.Fprintf(out, "+%d XP, level up %d -> %d (total %d)\n", a.XPGained, a.PreviousLevel, a.NewLevel, a.NewTotal)
		return
	}
	fmt.Fprintf(out, "+%d XP (total %d, level %d)\n", a.XPGained, a.NewTotal, a.NewLevel)
}

func printStreak(out io.Writer, s *streakView) {
	last := "never"
	if s.LastStudyDate != nil {
		last = *s.LastStudyDate
	}
	fmt.Fprintf(out, "Streak: %d day(s), longest %d, last studied %s\n", s.CurrentStreak, s.LongestStreak, last)
	if s.Outcome != "" {
		fmt.Fprintf(out, "Outcome: %s\n", s.Outcome)
	}
}
