package api

import (
	"net/http"
	"time"

	"peergate.dev/peergate/internal/brand"
)

// Public configuration endpoints. The UI reads these before login, so they
// sit on the gate's allow-list and must never leak anything sensitive.

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"release": brand.Version})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]bool{"updateAvailable": s.config.UpdateAvailable()})
}

func (s *Server) handleLang(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"lang": s.config.Lang})
}

func (s *Server) handleRememberMe(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]bool{"enabled": s.config.SessionMaxAgeDuration() > 0})
}

func (s *Server) handleUITrafficStats(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]bool{"enabled": s.config.UITrafficStats})
}

func (s *Server) handleUIChartType(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]int{"chartType": s.config.UIChartType})
}

// handleHealthz is the liveness probe.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}
