package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kilianp07/smartwatt/app"
	"github.com/kilianp07/smartwatt/core/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect or edit the device schedule",
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the persisted schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			s, err := svc.Planner.Schedule(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, s)
		})
	},
}

var (
	setEntry    schedule.Entry
	setDuration float64
)

var scheduleSetCmd = &cobra.Command{
	Use:   "set DEVICE",
	Short: "Set the window of one device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e := setEntry
		if cmd.Flags().Changed("duration") {
			d := setDuration
			e.Duration = &d
		}
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			if err := svc.Planner.SetSchedule(ctx, args[0], e); err != nil {
				return err
			}
			return printJSON(cmd, map[string]schedule.Entry{args[0]: e})
		})
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Print the most recent device optimizations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			items, err := svc.Planner.Recent(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, items)
		})
	},
}

func init() {
	f := scheduleSetCmd.Flags()
	f.StringVar(&setEntry.Start, "start", "", "window start, HH:MM")
	f.StringVar(&setEntry.End, "end", "", "window end, HH:MM")
	f.Float64Var(&setDuration, "duration", 0, "fleet run time override in hours")
	_ = scheduleSetCmd.MarkFlagRequired("start")
	_ = scheduleSetCmd.MarkFlagRequired("end")

	scheduleCmd.AddCommand(scheduleListCmd, scheduleSetCmd)
	rootCmd.AddCommand(scheduleCmd, recentCmd)
}
