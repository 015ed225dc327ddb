package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/medbook/internal/booking"
)

func listSpecialtiesHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		specialties, err := svc.ListSpecialties(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, specialties)
	}
}

func createSpecialtyHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SpecialtyRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		sp, err := svc.CreateSpecialty(r.Context(), booking.SpecialtyInput(req))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, sp)
	}
}

func updateSpecialtyHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "invalid_specialty_id")
		if !ok {
			return
		}
		var req SpecialtyRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		sp, err := svc.UpdateSpecialty(r.Context(), id, booking.SpecialtyInput(req))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sp)
	}
}

func deleteSpecialtyHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "invalid_specialty_id")
		if !ok {
			return
		}
		if err := svc.DeleteSpecialty(r.Context(), id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listDoctorsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := booking.DoctorFilter{SpecialtyName: strings.TrimSpace(q.Get("specialty"))}

		if raw := q.Get("specialtyId"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Details: "specialtyId must be a UUID", Field: "specialtyId"})
				return
			}
			f.SpecialtyID = &id
		}

		var ok bool
		if f.MinPrice, ok = priceParam(w, q.Get("minPrice"), "minPrice"); !ok {
			return
		}
		if f.MaxPrice, ok = priceParam(w, q.Get("maxPrice"), "maxPrice"); !ok {
			return
		}

		doctors, err := svc.ListDoctors(r.Context(), f)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doctors)
	}
}

func getDoctorHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "invalid_doctor_id")
		if !ok {
			return
		}
		d, err := svc.GetDoctor(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func createDoctorHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DoctorRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		d, err := svc.CreateDoctor(r.Context(), booking.DoctorInput(req))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, d)
	}
}

func updateDoctorHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "invalid_doctor_id")
		if !ok {
			return
		}
		var req DoctorRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		d, err := svc.UpdateDoctor(r.Context(), id, booking.DoctorInput(req))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func deleteDoctorHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "invalid_doctor_id")
		if !ok {
			return
		}
		if err := svc.DeleteDoctor(r.Context(), id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func priceParam(w http.ResponseWriter, raw, name string) (*float64, bool) {
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Details: name + " must be a non-negative number", Field: name})
		return nil, false
	}
	return &v, true
}
