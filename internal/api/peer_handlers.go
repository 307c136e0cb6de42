package api

import (
	"fmt"
	"net/http"
	"time"

	"peergate.dev/peergate/internal/qr"
	"peergate.dev/peergate/internal/tunnel"
	"peergate.dev/peergate/internal/validation"
)

type peerNameRequest struct {
	Name string `json:"name"`
}

type peerAddressRequest struct {
	Address string `json:"address"`
}

// handlePeerList returns every peer with live transfer counters merged in.
// The registry is the source of truth; the device only decorates. A dead or
// absent device must never break the list.
func (s *Server) handlePeerList(w http.ResponseWriter, r *http.Request) {
	peers := s.peers.List()

	counters, err := s.device.PeerCounters()
	if err != nil {
		s.logger.Debug("Peer counters unavailable", "error", err)
		counters = nil
	}

	views := make([]PeerView, 0, len(peers))
	for _, p := range peers {
		views = append(views, newPeerView(p, counters[p.PublicKey]))
	}
	WriteJSON(w, http.StatusOK, views)
}

// handlePeerCreate provisions a peer: key pair, preshared key, and the next
// free address in the subnet.
func (s *Server) handlePeerCreate(w http.ResponseWriter, r *http.Request) {
	var req peerNameRequest
	if !BindJSON(w, r, &req) {
		return
	}
	if err := validation.ValidatePeerName(req.Name); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid peer name", err.Error())
		return
	}

	p, err := s.peers.Create(req.Name)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.metrics.RecordPeerMutation("create")
	s.wsManager.TriggerUpdate()
	s.logger.Info("Peer created", "peer", p.ID, "name", p.Name, "address", p.Address)
	WriteJSON(w, http.StatusCreated, newPeerView(p, tunnel.Counters{}))
}

func (s *Server) handlePeerDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("peerID")
	if !s.checkPeerID(w, r, id) {
		return
	}
	if err := s.peers.Delete(id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.metrics.RecordPeerMutation("delete")
	s.wsManager.TriggerUpdate()
	s.logger.Info("Peer deleted", "peer", id)
	SuccessResponse(w)
}

func (s *Server) handlePeerEnable(w http.ResponseWriter, r *http.Request) {
	s.setPeerEnabled(w, r, true)
}

func (s *Server) handlePeerDisable(w http.ResponseWriter, r *http.Request) {
	s.setPeerEnabled(w, r, false)
}

func (s *Server) setPeerEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id := r.PathValue("peerID")
	if !s.checkPeerID(w, r, id) {
		return
	}
	p, err := s.peers.SetEnabled(id, enabled)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	op := "disable"
	if enabled {
		op = "enable"
	}
	s.metrics.RecordPeerMutation(op)
	s.wsManager.TriggerUpdate()
	s.logger.Info("Peer state changed", "peer", p.ID, "name", p.Name, "enabled", enabled)
	SuccessResponse(w)
}

func (s *Server) handlePeerRename(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("peerID")
	if !s.checkPeerID(w, r, id) {
		return
	}
	var req peerNameRequest
	if !BindJSON(w, r, &req) {
		return
	}
	if err := validation.ValidatePeerName(req.Name); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid peer name", err.Error())
		return
	}

	p, err := s.peers.Rename(id, req.Name)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.metrics.RecordPeerMutation("rename")
	s.wsManager.TriggerUpdate()
	WriteJSON(w, http.StatusOK, newPeerView(p, tunnel.Counters{}))
}

func (s *Server) handlePeerAddress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("peerID")
	if !s.checkPeerID(w, r, id) {
		return
	}
	var req peerAddressRequest
	if !BindJSON(w, r, &req) {
		return
	}
	if err := validation.ValidateAddress(req.Address); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid address", err.Error())
		return
	}

	p, err := s.peers.UpdateAddress(id, req.Address)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.metrics.RecordPeerMutation("address")
	s.wsManager.TriggerUpdate()
	s.logger.Info("Peer re-addressed", "peer", p.ID, "address", p.Address)
	WriteJSON(w, http.StatusOK, newPeerView(p, tunnel.Counters{}))
}

// handlePeerProfile serves the peer's connection profile as a downloadable
// vpn:// token. The id passes the sanitizer before it reaches the registry;
// encoder failures surface as 502, never as an empty download.
func (s *Server) handlePeerProfile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("peerID")
	if !s.checkPeerID(w, r, id) {
		return
	}

	result, err := s.profiles.Export(r.Context(), id)
	s.metrics.RecordProfileExport(err)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	w.Write([]byte(result.URI))
}

// handlePeerQRCode renders the same token as an SVG QR code for phone
// provisioning.
func (s *Server) handlePeerQRCode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("peerID")
	if !s.checkPeerID(w, r, id) {
		return
	}

	result, err := s.profiles.Export(r.Context(), id)
	s.metrics.RecordProfileExport(err)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	svg, err := qr.SVG(result.URI)
	if err != nil {
		s.logger.Error("QR render failed", "peer", id, "error", err)
		WriteError(w, http.StatusInternalServerError, "qr render failed")
		return
	}
	s.metrics.QRCodesServed.Inc()
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Write([]byte(svg))
}

// handlePeerHistory returns recorded traffic samples for one peer. The
// window defaults to a day and can be widened with ?since=<duration>.
func (s *Server) handlePeerHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("peerID")
	if !s.checkPeerID(w, r, id) {
		return
	}
	if s.history == nil {
		WriteError(w, http.StatusNotFound, "traffic history not enabled")
		return
	}
	// Unknown peers stay a 404 like everywhere else, even though the
	// history table would just come back empty.
	if _, err := s.peers.Get(id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	window := 24 * time.Hour
	if raw := r.URL.Query().Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			WriteError(w, http.StatusBadRequest, "invalid since duration")
			return
		}
		window = d
	}

	samples, err := s.history.History(id, time.Now().Add(-window))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, samples)
}
