package api

import (
	"errors"
	"net/http"

	"peergate.dev/peergate/internal/auth"
	"peergate.dev/peergate/internal/peer"
	"peergate.dev/peergate/internal/profile"
	"peergate.dev/peergate/internal/validation"
)

// The API maps failures onto a fixed taxonomy:
//
//	validation       → 400
//	authentication   → 401 (generic body, never reveals which part failed)
//	authorization    → 403
//	not found        → 404
//	path security    → 400
//	external encoder → 502
//
// writeDomainError is the single place service-layer sentinels become
// HTTP statuses; handlers never translate them locally.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidSession):
		WriteError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, peer.ErrPeerNotFound):
		WriteError(w, http.StatusNotFound, "peer not found")
	case errors.Is(err, validation.ErrReservedIdentifier):
		s.logger.Warn("Rejected reserved identifier", "path", r.URL.Path, "ip", getClientIP(r))
		WriteError(w, http.StatusForbidden, "reserved identifier")
	case errors.Is(err, peer.ErrAddressInUse):
		WriteError(w, http.StatusBadRequest, "address already in use")
	case errors.Is(err, peer.ErrAddressOutOfRange):
		WriteError(w, http.StatusBadRequest, "invalid address", err.Error())
	case errors.Is(err, peer.ErrSubnetExhausted):
		WriteError(w, http.StatusBadRequest, "no free addresses in subnet")
	case errors.Is(err, profile.ErrEncodeFailed):
		WriteError(w, http.StatusBadGateway, "profile encoding failed")
	default:
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

// checkPeerID runs the identifier sanitizer. Returns false if the id was
// rejected, in which case the response has already been written. Reserved
// identifiers are an authorization failure; anything else wrong with the
// id is a validation one.
func (s *Server) checkPeerID(w http.ResponseWriter, r *http.Request, id string) bool {
	err := validation.ValidatePeerID(id)
	if err == nil {
		return true
	}
	if errors.Is(err, validation.ErrReservedIdentifier) {
		s.writeDomainError(w, r, err)
	} else {
		WriteError(w, http.StatusBadRequest, "invalid peer id", err.Error())
	}
	return false
}
