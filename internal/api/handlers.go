package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/medbook/internal/booking"
)

func availabilityHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		doctorRaw := strings.TrimSpace(q.Get("doctorId"))
		if doctorRaw == "" {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Details: "doctorId is required", Field: "doctorId"})
			return
		}
		doctorID, err := uuid.Parse(doctorRaw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Details: "doctorId must be a UUID", Field: "doctorId"})
			return
		}

		dateRaw := strings.TrimSpace(q.Get("date"))
		if dateRaw == "" {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Details: "date is required", Field: "date"})
			return
		}
		date, err := booking.ParseDate(dateRaw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Details: "date must be YYYY-MM-DD", Field: "date"})
			return
		}

		slots, err := svc.Slots(r.Context(), doctorID, date)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, slots)
	}
}

func createBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		b, err := svc.SubmitBooking(r.Context(), booking.SubmitRequest{
			DoctorID:         req.DoctorID,
			PatientName:      req.PatientName,
			PatientEmail:     req.PatientEmail,
			PatientPhone:     req.PatientPhone,
			Date:             req.Date,
			Time:             req.Time,
			ConsultationType: req.ConsultationType,
			Notes:            req.Notes,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, newBookingResponse(b))
	}
}

func listBookingsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var f booking.BookingFilter

		if raw := q.Get("status"); raw != "" {
			st, ok := booking.ParseStatus(strings.ToLower(raw))
			if !ok {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Details: "unknown status " + raw, Field: "status"})
				return
			}
			f.Status = &st
		}
		if raw := q.Get("doctorId"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Details: "doctorId must be a UUID", Field: "doctorId"})
				return
			}
			f.DoctorID = &id
		}

		var ok bool
		if f.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
			return
		}
		if f.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
			return
		}
		f = f.Normalize()

		bookings, err := svc.ListBookings(r.Context(), f)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := BookingListResponse{
			Bookings: make([]BookingResponse, 0, len(bookings)),
			Limit:    f.Limit,
			Offset:   f.Offset,
		}
		for i := range bookings {
			resp.Bookings = append(resp.Bookings, newBookingResponse(&bookings[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "invalid_booking_id")
		if !ok {
			return
		}

		b, err := svc.GetBooking(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newBookingResponse(b))
	}
}

func updateBookingStatusHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "invalid_booking_id")
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		to, valid := booking.ParseStatus(strings.ToLower(strings.TrimSpace(req.Status)))
		if !valid {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Details: "unknown status " + req.Status, Field: "status"})
			return
		}

		b, err := svc.UpdateStatus(r.Context(), id, to)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newBookingResponse(b))
	}
}

func idParam(w http.ResponseWriter, r *http.Request, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Details: name + " must be a non-negative integer", Field: name})
		return 0, false
	}
	return n, true
}
