package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"dayplanner/internal/model"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dayplanner",
		Short:         "Daily schedule planner with calendar sync",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
	root.AddCommand(newServeCmd(), newSyncCmd(), newAutogenCmd(), newUserCmd())
	return root
}

func runServe(cmd *cobra.Command) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return serve(cmd.Context(), a)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, webhook receiver, scheduler and Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
}

func newSyncCmd() *cobra.Command {
	var userID, date string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull a user's calendar into the schedule for a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.reconciler.SyncFromCalendar(cmd.Context(), userID, date)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"ok":       true,
				"schedule": res.Schedule,
				"created":  res.Created,
				"degraded": res.Degraded,
				"stats":    res.Stats,
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&date, "date", time.Now().Format(model.DayLayout), "day as YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newAutogenCmd() *cobra.Command {
	var userID, date, tz string
	cmd := &cobra.Command{
		Use:   "autogen",
		Short: "Generate a day's schedule from the previous one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.reconciler.Autogenerate(cmd.Context(), userID, date, tz)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"ok":                   true,
				"schedule":             res.Schedule,
				"created":              res.Created,
				"existed":              res.Existed,
				"sourceFound":          res.SourceFound,
				"calendarAuthRequired": res.CalendarAuthRequired,
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&date, "date", time.Now().AddDate(0, 0, 1).Format(model.DayLayout), "day as YYYY-MM-DD")
	cmd.Flags().StringVar(&tz, "tz", "", "timezone override, e.g. Europe/Berlin")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage planner users",
	}

	var name, calendarURL, tz string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a user and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tz != "" {
				if _, err := time.LoadLocation(tz); err != nil {
					return fmt.Errorf("timezone: %w", err)
				}
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.users.Create(cmd.Context(), name, calendarURL, tz)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), user.ID)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&calendarURL, "calendar", "", "private ICS feed URL")
	add.Flags().StringVar(&tz, "tz", "", "timezone, e.g. Europe/Berlin")

	cmd.AddCommand(add)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
