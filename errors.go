package oidc

import (
	"encoding/json"
	"net/http"

	"github.com/giantswarm/jwt-oidc/security"
	"github.com/giantswarm/jwt-oidc/server"
)

// writeError renders err as an OAuth error response. Anything that is not a
// *server.Error is reported as server_error; its cause is only logged.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	oe := server.AsError(err)
	security.SetSecurityHeaders(w, h.server.Config.Issuer)

	switch oe.Code {
	case server.ErrorCodeInvalidClient:
		w.Header().Set("WWW-Authenticate", `Basic realm="`+h.server.Config.Issuer+`"`)
	case server.ErrorCodeInvalidToken:
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	case server.ErrorCodeServerError:
		security.RequestLogger(r.Context(), h.logger).Error("Request failed",
			"path", r.URL.Path,
			"error", oe.Err)
	}

	writeJSON(w, oe.Status, ErrorResponse{
		Error:            oe.Code,
		ErrorDescription: oe.Description,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
