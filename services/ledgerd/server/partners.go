package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"partnerledger/native/commission"
)

type referralRequest struct {
	PartnerID  string `json:"partnerId"`
	ReferralID string `json:"referralId"`
}

// LinkReferral records that referralId was brought in by partnerId.
func (s *Server) LinkReferral(w http.ResponseWriter, r *http.Request) {
	var req referralRequest
	if !s.decode(w, r, &req) {
		return
	}
	link, err := s.partners.Graph().Link(r.Context(), req.PartnerID, req.ReferralID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"partnerId":  link.PartnerID,
		"referralId": link.ReferralID,
		"createdAt":  link.CreatedAt,
	})
}

// GetPartnerStats returns the partner's aggregates with the evaluated level.
func (s *Server) GetPartnerStats(w http.ResponseWriter, r *http.Request) {
	stats, level, err := s.partners.LevelStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newPartnerStatsView(stats, level))
}

// ListPartnerCommissions lists the partner's commissions, optionally filtered
// by ?status=.
func (s *Server) ListPartnerCommissions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter := commission.Filter{PartnerID: chi.URLParam(r, "id"), Limit: limit}
	for _, raw := range r.URL.Query()["status"] {
		filter.Statuses = append(filter.Statuses, commission.Status(normalizeStatus(raw)))
	}
	rows, err := s.commissions.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"commissions": newCommissionViews(rows)})
}

type commissionActionRequest struct {
	Reason string `json:"reason"`
}

// ApproveCommission moves a PENDING commission to APPROVED.
func (s *Server) ApproveCommission(w http.ResponseWriter, r *http.Request) {
	c, err := s.commissions.Approve(r.Context(), chi.URLParam(r, "id"), actorOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCommissionView(c))
}

// CancelCommission cancels a PENDING or APPROVED commission.
func (s *Server) CancelCommission(w http.ResponseWriter, r *http.Request) {
	var req commissionActionRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	c, err := s.commissions.Cancel(r.Context(), chi.URLParam(r, "id"), actorOf(r), req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCommissionView(c))
}
