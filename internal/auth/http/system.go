package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/agencydesk/internal/auth/store"
	"github.com/aussiebroadwan/agencydesk/pkg/authsdk"
	"github.com/aussiebroadwan/agencydesk/pkg/httpx"
	"github.com/aussiebroadwan/agencydesk/pkg/jwtx"
)

// SystemHandler serves the health probes and the public key set.
type SystemHandler struct {
	Version   string
	StartTime time.Time
	Store     store.Store
	Keys      *jwtx.KeyManager
}

func (h *SystemHandler) uptime() string {
	return time.Since(h.StartTime).Truncate(time.Second).String()
}

// HandleLivez godoc
//
//	@Summary		Liveness probe
//	@Description	Always returns 200 OK while the process is serving requests.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version"
//	@Router			/livez [get].
func (h *SystemHandler) HandleLivez(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{
		Status:  "ok",
		Uptime:  h.uptime(),
		Version: h.Version,
	})
}

// HandleReadyz godoc
//
//	@Summary		Readiness probe
//	@Description	Checks the database connection and that a signing key is loaded.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	authsdk.HealthResponse	"one or more checks failed"
//	@Router			/readyz [get].
func (h *SystemHandler) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := &authsdk.HealthChecks{Database: "ok", Signer: "ok"}
	status, code := "ok", http.StatusOK

	if err := h.Store.Ping(r.Context()); err != nil {
		checks.Database = "error: " + err.Error()
		status, code = "degraded", http.StatusServiceUnavailable
	}
	if h.Keys == nil || !h.Keys.IsReady() {
		checks.Signer = "error: no keys loaded"
		status, code = "degraded", http.StatusServiceUnavailable
	}

	httpx.WriteJSON(w, code, authsdk.HealthResponse{
		Status:  status,
		Uptime:  h.uptime(),
		Version: h.Version,
		Checks:  checks,
	})
}

// HandleJWKS godoc
//
//	@Summary		Get JWKS
//	@Description	Returns the public keys that verify session tokens.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	authsdk.JWKSResponse	"The JSON Web Key Set"
//	@Router			/.well-known/jwks.json [get].
func (h *SystemHandler) HandleJWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	httpx.WriteJSON(w, http.StatusOK, authsdk.JWKSResponse(h.Keys.KeySet.PublicJWKS()))
}
