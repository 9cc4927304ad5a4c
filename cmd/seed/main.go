package main

import (
	"context"
	"os"
	"time"

	"carecal/pkg/client"
	apperrors "carecal/pkg/errors"
	"carecal/pkg/logger"
	"carecal/pkg/model"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	appointmentKinds = []model.AppointmentKind{
		model.AppointmentConsultation,
		model.AppointmentFollowUp,
		model.AppointmentTherapy,
		model.AppointmentRoutineCheckup,
	}
	slotMinutes = []int{15, 20, 30, 45, 60}
	timeZones   = []string{"UTC", "Europe/London", "America/New_York", "Asia/Jerusalem"}
)

type seedOptions struct {
	availabilityURL string
	bookingsURL     string
	providers       int
	bookings        int
	days            int
}

func main() {
	opts := seedOptions{}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate a running deployment with fake providers, rules and bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return seed(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.availabilityURL, "availability-url", envOr("AVAILABILITY_URL", "http://localhost:8080"), "availability service base URL")
	cmd.Flags().StringVar(&opts.bookingsURL, "bookings-url", envOr("BOOKINGS_URL", "http://localhost:8081"), "bookings service base URL")
	cmd.Flags().IntVar(&opts.providers, "providers", 10, "number of providers to create")
	cmd.Flags().IntVar(&opts.bookings, "bookings", 50, "number of booking attempts")
	cmd.Flags().IntVar(&opts.days, "days", 7, "days ahead to book into")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func seed(ctx context.Context, opts seedOptions) error {
	log := logger.New(logger.Config{Level: logger.INFO, Format: logger.TEXT, Service: "seed"})
	availability := client.NewAvailabilityClient(opts.availabilityURL)
	bookings := client.NewBookingClient(opts.bookingsURL)

	if err := availability.WaitForHealthy(ctx); err != nil {
		return err
	}
	if err := bookings.WaitForHealthy(ctx); err != nil {
		return err
	}

	today := time.Now().UTC().Format(model.DateLayout)
	providers := make([]string, 0, opts.providers)
	for range opts.providers {
		providerID := "prov-" + uuid.NewString()[:8]
		actor := model.Actor{ID: providerID, Role: model.ActorProvider}
		rule, err := availability.CreateRule(ctx, actor, providerID, fakeRule(today))
		if err != nil {
			log.Warn("Failed to create rule", "provider_id", providerID, "error", err)
			continue
		}
		providers = append(providers, providerID)
		log.Info("Created rule", "provider_id", providerID, "rule_id", rule.ID, "title", rule.Title)
	}
	if len(providers) == 0 {
		return apperrors.Internal("no provider could be seeded", nil)
	}

	from := time.Now().UTC().AddDate(0, 0, 1).Format(model.DateLayout)
	to := time.Now().UTC().AddDate(0, 0, opts.days).Format(model.DateLayout)

	var booked, rejected int
	for range opts.bookings {
		providerID := providers[gofakeit.Number(0, len(providers)-1)]
		patient := model.Actor{ID: "pat-" + gofakeit.Numerify("####"), Role: model.ActorPatient, BookingAllowed: true}

		slots, err := availability.ListSlots(ctx, patient, providerID, from, to, model.SlotAvailable, model.SlotCancelled)
		if err != nil {
			return err
		}
		if len(slots) == 0 {
			continue
		}

		slot := slots[gofakeit.Number(0, len(slots)-1)]
		if _, err := bookings.Book(ctx, patient, slot.ID, &model.BookingRequest{}); err != nil {
			rejected++
			log.Debug("Booking rejected", "slot_id", slot.ID, "patient_id", patient.ID, "error", err)
			continue
		}
		booked++
	}

	log.Info("Seed complete", "providers", len(providers), "booked", booked, "rejected", rejected)
	return nil
}

func fakeRule(startDate string) *model.AvailabilityRule {
	start := gofakeit.Number(7, 12)
	return &model.AvailabilityRule{
		Title:               gofakeit.JobDescriptor() + " clinic",
		Description:         gofakeit.Phrase(),
		RecurrenceKind:      model.RecurrenceWeekly,
		DayOfWeek:           gofakeit.Number(1, 5),
		StartDate:           startDate,
		StartTime:           clock(start),
		EndTime:             clock(start + gofakeit.Number(2, 5)),
		SlotDurationMinutes: slotMinutes[gofakeit.Number(0, len(slotMinutes)-1)],
		BufferMinutes:       gofakeit.RandomInt([]int{0, 5, 10}),
		TimeZone:            timeZones[gofakeit.Number(0, len(timeZones)-1)],
		LocationKind:        model.LocationKind(gofakeit.RandomString([]string{string(model.LocationInPerson), string(model.LocationVirtual)})),
		AppointmentKind:     appointmentKinds[gofakeit.Number(0, len(appointmentKinds)-1)],
		AllowOnlineBooking:  true,
		RequiresApproval:    gofakeit.Bool(),
	}
}

func clock(hour int) string {
	return time.Date(0, 1, 1, hour, 0, 0, 0, time.UTC).Format("15:04")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
