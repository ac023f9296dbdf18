package main

import (
	"context"
	"fmt"
	"strings"

	"glowlogy/cmd/internal/app"
	"glowlogy/cmd/internal/booking"

	"github.com/spf13/cobra"
)

var (
	slotsDate     string
	slotsLocation string
	statusReason  string
)

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "List open slots for a location and date",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			open, err := a.Bookings().AvailableSlots(ctx, slotsDate, slotsLocation)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(map[string]any{"date": slotsDate, "locationId": slotsLocation, "slots": open})
			}
			if len(open) == 0 {
				fmt.Printf("No open slots at %s on %s\n", slotsLocation, slotsDate)
				return nil
			}
			fmt.Printf("Open slots at %s on %s:\n  %s\n", slotsLocation, slotsDate, strings.Join(open, " "))
			return nil
		})
	},
}

var bookingCmd = &cobra.Command{
	Use:   "booking",
	Short: "Operate on bookings",
}

var bookingStatusCmd = &cobra.Command{
	Use:   "status <id> <pending|confirmed|completed|cancelled>",
	Short: "Move a booking to another status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		next, err := booking.ParseStatus(args[1])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			var b booking.Booking
			if next == booking.StatusCancelled {
				b, err = a.Bookings().Cancel(ctx, args[0], statusReason)
			} else {
				b, err = a.Bookings().UpdateStatus(ctx, args[0], string(next))
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(b)
			}
			fmt.Printf("%s (%s) is now %s\n", b.BookingID, b.ID, b.Status)
			return nil
		})
	},
}

func init() {
	slotsCmd.Flags().StringVar(&slotsDate, "date", "", "date as YYYY-MM-DD")
	slotsCmd.Flags().StringVar(&slotsLocation, "location", "", "location id")
	_ = slotsCmd.MarkFlagRequired("date")
	_ = slotsCmd.MarkFlagRequired("location")

	bookingStatusCmd.Flags().StringVar(&statusReason, "reason", "", "cancellation reason")
	bookingCmd.AddCommand(bookingStatusCmd)
}
