package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/medbook/internal/booking"
)

type catalogDoctor struct {
	name       string
	specialty  string
	experience int
	price      float64
	bio        string
	types      []string
	image      string
}

var catalogSpecialties = []booking.SpecialtyInput{
	{Name: "General Medicine", Icon: "/icons/general.svg"},
	{Name: "Cardiology", Icon: "/icons/cardiology.svg"},
	{Name: "Dermatology", Icon: "/icons/dermatology.svg"},
	{Name: "Pediatrics", Icon: "/icons/pediatrics.svg"},
	{Name: "Neurology", Icon: "/icons/neurology.svg"},
	{Name: "Orthopedics", Icon: "/icons/orthopedics.svg"},
}

var catalogDoctors = []catalogDoctor{
	{"Dr. Sarah Johnson", "Cardiology", 12, 150, "Expert cardiologist with over a decade of experience in treating heart conditions.", []string{"online", "clinic"}, "/doctors/dr-sarah.jpg"},
	{"Dr. Michael Chen", "Dermatology", 8, 120, "Specialist in skin care, acne treatment, and cosmetic dermatology.", []string{"online"}, "/doctors/dr-michael.jpg"},
	{"Dr. Emily Williams", "Pediatrics", 15, 100, "Caring pediatrician dedicated to the health and well-being of children.", []string{"clinic"}, "/doctors/dr-emily.jpg"},
	{"Dr. Robert Brown", "General Medicine", 20, 80, "Family physician providing comprehensive primary care for all ages.", []string{"online", "clinic"}, "/doctors/dr-robert.jpg"},
	{"Dr. Lisa Davis", "Neurology", 10, 200, "Neurologist specializing in headaches, migraines, and nerve disorders.", []string{"clinic"}, "/doctors/dr-lisa.jpg"},
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the demo specialties and doctors, optionally with fake data",
		RunE: func(cmd *cobra.Command, args []string) error {
			fakeDoctors, _ := cmd.Flags().GetInt("fake-doctors")
			fakeBookings, _ := cmd.Flags().GetInt("fake-bookings")
			seed, _ := cmd.Flags().GetUint64("seed")

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			specialties, doctors, err := seedCatalog(ctx, e.svc)
			if err != nil {
				return err
			}
			e.log.Info().Int("specialties", specialties).Int("doctors", doctors).Msg("catalog seeded")

			if fakeDoctors == 0 && fakeBookings == 0 {
				return nil
			}

			faker := gofakeit.New(seed)
			d, b, err := seedFake(ctx, e.svc, faker, fakeDoctors, fakeBookings, time.Now())
			if err != nil {
				return err
			}
			e.log.Info().Int("doctors", d).Int("bookings", b).Msg("fake data seeded")
			return nil
		},
	}
	cmd.Flags().Int("fake-doctors", 0, "Extra generated doctors")
	cmd.Flags().Int("fake-bookings", 0, "Generated bookings over the next two weeks")
	cmd.Flags().Uint64("seed", 0, "Faker seed, 0 for random")
	return cmd
}

// seedCatalog inserts the demo catalog. Entries that already exist are left
// alone so the command can be re-run.
func seedCatalog(ctx context.Context, svc *booking.Service) (specialties, doctors int, err error) {
	existing, err := svc.ListSpecialties(ctx)
	if err != nil {
		return 0, 0, err
	}
	byName := make(map[string]uuid.UUID, len(existing))
	for _, sp := range existing {
		byName[strings.ToLower(sp.Name)] = sp.ID
	}

	for _, in := range catalogSpecialties {
		if _, ok := byName[strings.ToLower(in.Name)]; ok {
			continue
		}
		sp, err := svc.CreateSpecialty(ctx, in)
		if err != nil {
			return specialties, doctors, fmt.Errorf("seed specialty %s: %w", in.Name, err)
		}
		byName[strings.ToLower(sp.Name)] = sp.ID
		specialties++
	}

	current, err := svc.ListDoctors(ctx, booking.DoctorFilter{})
	if err != nil {
		return specialties, doctors, err
	}
	known := make(map[string]bool, len(current))
	for _, d := range current {
		known[d.Name] = true
	}

	for _, cd := range catalogDoctors {
		if known[cd.name] {
			continue
		}
		_, err := svc.CreateDoctor(ctx, booking.DoctorInput{
			Name:              cd.name,
			SpecialtyID:       byName[strings.ToLower(cd.specialty)].String(),
			Experience:        cd.experience,
			Price:             cd.price,
			Bio:               cd.bio,
			ImageURL:          cd.image,
			ConsultationTypes: cd.types,
		})
		if err != nil {
			return specialties, doctors, fmt.Errorf("seed doctor %s: %w", cd.name, err)
		}
		doctors++
	}

	return specialties, doctors, nil
}

// seedFake adds generated doctors and bookings. Bookings that land on an
// already taken slot are skipped.
func seedFake(ctx context.Context, svc *booking.Service, f *gofakeit.Faker, doctorCount, bookingCount int, now time.Time) (doctors, bookings int, err error) {
	specialties, err := svc.ListSpecialties(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(specialties) == 0 {
		return 0, 0, errors.New("no specialties to attach doctors to; seed the catalog first")
	}

	for i := 0; i < doctorCount; i++ {
		sp := specialties[f.Number(0, len(specialties)-1)]
		types := [][]string{{"online"}, {"clinic"}, {"online", "clinic"}}[f.Number(0, 2)]

		_, err := svc.CreateDoctor(ctx, booking.DoctorInput{
			Name:              "Dr. " + f.Name(),
			SpecialtyID:       sp.ID.String(),
			Experience:        f.Number(1, 35),
			Price:             float64(f.Number(6, 30) * 10),
			Bio:               fmt.Sprintf("%s specialist based in %s.", sp.Name, f.City()),
			ConsultationTypes: types,
		})
		if err != nil {
			return doctors, bookings, fmt.Errorf("fake doctor: %w", err)
		}
		doctors++
	}

	all, err := svc.ListDoctors(ctx, booking.DoctorFilter{})
	if err != nil {
		return doctors, bookings, err
	}
	if len(all) == 0 {
		return doctors, bookings, nil
	}

	slots := svc.Grid().Times()
	for i := 0; i < bookingCount; i++ {
		d := all[f.Number(0, len(all)-1)]
		ct := "clinic"
		if len(d.ConsultationTypes) > 0 {
			ct = string(d.ConsultationTypes[f.Number(0, len(d.ConsultationTypes)-1)])
		}
		day := now.AddDate(0, 0, f.Number(1, 14))

		_, err := svc.SubmitBooking(ctx, booking.SubmitRequest{
			DoctorID:         d.ID.String(),
			PatientName:      f.Name(),
			PatientEmail:     f.Email(),
			PatientPhone:     f.Phone(),
			Date:             day.Format(booking.DateLayout),
			Time:             slots[f.Number(0, len(slots)-1)],
			ConsultationType: ct,
		})
		if err != nil {
			if errors.Is(err, booking.ErrSlotTaken) || errors.Is(err, booking.ErrSlotBeingBooked) {
				continue
			}
			return doctors, bookings, fmt.Errorf("fake booking: %w", err)
		}
		bookings++
	}

	return doctors, bookings, nil
}
