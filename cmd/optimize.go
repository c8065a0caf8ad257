package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kilianp07/smartwatt/app"
	"github.com/kilianp07/smartwatt/core/planner"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Run an optimization",
}

var (
	deviceReq  planner.DeviceRequest
	fleetApply bool
)

var optimizeDeviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Find the cheapest run of one device inside a window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			res, err := svc.Planner.OptimizeDevice(ctx, deviceReq)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		})
	},
}

var optimizeFleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Plan every configured device over the fleet horizon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			res, err := svc.Planner.OptimizeFleet(ctx, fleetApply)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		})
	},
}

func init() {
	f := optimizeDeviceCmd.Flags()
	f.StringVarP(&deviceReq.Device, "device", "d", "", "device entity id")
	f.Float64Var(&deviceReq.DurationHours, "duration", 0, "run time in hours (default 2)")
	f.StringVar(&deviceReq.Start, "start", "", "earliest start, HH:MM")
	f.StringVar(&deviceReq.End, "end", "", "latest end, HH:MM")
	f.StringVar(&deviceReq.Priority, "priority", "", "free-form priority recorded with the result")
	_ = optimizeDeviceCmd.MarkFlagRequired("device")
	_ = optimizeDeviceCmd.MarkFlagRequired("start")
	_ = optimizeDeviceCmd.MarkFlagRequired("end")

	optimizeFleetCmd.Flags().BoolVar(&fleetApply, "apply", false, "write the recommended windows to the schedule")

	optimizeCmd.AddCommand(optimizeDeviceCmd, optimizeFleetCmd)
	rootCmd.AddCommand(optimizeCmd)
}
