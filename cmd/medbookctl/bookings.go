package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/medbook/internal/booking"
)

func bookingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookings",
		Short: "Inspect and update bookings",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List bookings, newest slot first",
		RunE: func(cmd *cobra.Command, args []string) error {
			statusRaw, _ := cmd.Flags().GetString("status")
			doctorRaw, _ := cmd.Flags().GetString("doctor")
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")

			f, err := bookingFilter(statusRaw, doctorRaw, limit, offset)
			if err != nil {
				return err
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			bookings, err := e.svc.ListBookings(cmd.Context(), f)
			if err != nil {
				return err
			}
			return printBookings(cmd.OutOrStdout(), bookings)
		},
	}
	listCmd.Flags().String("status", "", "Filter by status (pending, confirmed, cancelled, completed)")
	listCmd.Flags().String("doctor", "", "Filter by doctor ID")
	listCmd.Flags().Int("limit", booking.DefaultPageSize, "Page size")
	listCmd.Flags().Int("offset", 0, "Page offset")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "set-status <booking-id> <status>",
		Short: "Move a booking to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid booking id %q", args[0])
			}
			to, ok := booking.ParseStatus(strings.ToLower(args[1]))
			if !ok {
				return fmt.Errorf("unknown status %q", args[1])
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			b, err := e.svc.UpdateStatus(cmd.Context(), id, to)
			if err != nil {
				return err
			}
			return printBookings(cmd.OutOrStdout(), []booking.Booking{*b})
		},
	})

	return cmd
}

func bookingFilter(status, doctor string, limit, offset int) (booking.BookingFilter, error) {
	f := booking.BookingFilter{Limit: limit, Offset: offset}
	if status != "" {
		st, ok := booking.ParseStatus(strings.ToLower(status))
		if !ok {
			return f, fmt.Errorf("unknown status %q", status)
		}
		f.Status = &st
	}
	if doctor != "" {
		id, err := uuid.Parse(doctor)
		if err != nil {
			return f, fmt.Errorf("invalid doctor id %q", doctor)
		}
		f.DoctorID = &id
	}
	return f.Normalize(), nil
}

func printBookings(out io.Writer, bookings []booking.Booking) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTIME\tDOCTOR\tPATIENT\tTYPE\tSTATUS")
	for _, b := range bookings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			b.ID, b.DateString(), b.Time, b.DoctorID, b.PatientName, b.ConsultationType, b.Status)
	}
	return tw.Flush()
}
