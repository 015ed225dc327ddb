package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/medbook/internal/auth"
)

func loginHandler(a auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds auth.Credentials
		if !decodeJSON(w, r, &creds) {
			return
		}

		session, err := a.Authenticate(r.Context(), creds)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				zerolog.Ctx(r.Context()).Warn().Msg("admin login failed")
				writeError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
				return
			}
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, session)
	}
}
