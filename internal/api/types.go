package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/medbook/internal/booking"
)

type CreateBookingRequest struct {
	DoctorID         string `json:"doctorId"`
	PatientName      string `json:"patientName"`
	PatientEmail     string `json:"patientEmail"`
	PatientPhone     string `json:"patientPhone"`
	Date             string `json:"date"`
	Time             string `json:"time"`
	ConsultationType string `json:"consultationType"`
	Notes            string `json:"notes"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type SpecialtyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type DoctorRequest struct {
	Name              string   `json:"name"`
	SpecialtyID       string   `json:"specialtyId"`
	Experience        int      `json:"experience"`
	Price             float64  `json:"price"`
	Bio               string   `json:"bio"`
	ImageURL          string   `json:"imageUrl"`
	ConsultationTypes []string `json:"consultationTypes"`
}

type BookingResponse struct {
	ID               uuid.UUID `json:"id"`
	DoctorID         uuid.UUID `json:"doctorId"`
	DoctorName       string    `json:"doctorName,omitempty"`
	PatientName      string    `json:"patientName"`
	PatientEmail     string    `json:"patientEmail,omitempty"`
	PatientPhone     string    `json:"patientPhone,omitempty"`
	Date             string    `json:"date"`
	Time             string    `json:"time"`
	ConsultationType string    `json:"consultationType"`
	Status           string    `json:"status"`
	Notes            string    `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func newBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:               b.ID,
		DoctorID:         b.DoctorID,
		DoctorName:       b.DoctorName,
		PatientName:      b.PatientName,
		PatientEmail:     b.PatientEmail,
		PatientPhone:     b.PatientPhone,
		Date:             b.DateString(),
		Time:             b.Time,
		ConsultationType: string(b.ConsultationType),
		Status:           string(b.Status),
		Notes:            b.Notes,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

type BookingListResponse struct {
	Bookings []BookingResponse `json:"bookings"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}
