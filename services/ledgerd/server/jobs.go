package server

import (
	"errors"
	"net/http"
	"time"
)

type jobRequest struct {
	At *time.Time `json:"at"`
}

var errNoMaintenance = errors.New("maintenance jobs not configured")

func (s *Server) jobTime(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	if s.maintenance == nil {
		s.writeError(w, r, errNoMaintenance)
		return time.Time{}, false
	}
	var req jobRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return time.Time{}, false
	}
	if req.At != nil {
		return req.At.UTC(), true
	}
	return s.now().UTC(), true
}

// RunExpire triggers the expiry sweep.
func (s *Server) RunExpire(w http.ResponseWriter, r *http.Request) {
	at, ok := s.jobTime(w, r)
	if !ok {
		return
	}
	summary, err := s.maintenance.Expire(r.Context(), at)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"at":      at,
		"users":   summary.Users,
		"entries": summary.Entries,
		"total":   summary.Total,
	})
}

// RunCommissions auto-approves aged PENDING commissions and settles APPROVED
// ones.
func (s *Server) RunCommissions(w http.ResponseWriter, r *http.Request) {
	at, ok := s.jobTime(w, r)
	if !ok {
		return
	}
	approved, settled, err := s.maintenance.Commissions(r.Context(), at)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"at": at, "approved": approved, "settled": settled})
}

// RunPayouts drives APPROVED withdrawals through payout.
func (s *Server) RunPayouts(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.jobTime(w, r); !ok {
		return
	}
	summary, err := s.maintenance.Payouts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"started":   summary.Started,
		"completed": summary.Completed,
		"failed":    summary.Failed,
	})
}

// RunWarnings lists the expiry warnings due at the given time.
func (s *Server) RunWarnings(w http.ResponseWriter, r *http.Request) {
	at, ok := s.jobTime(w, r)
	if !ok {
		return
	}
	warnings, err := s.maintenance.Warnings(r.Context(), at)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(warnings))
	for _, warning := range warnings {
		out = append(out, map[string]any{
			"userId":         warning.UserID,
			"windowDays":     warning.WindowDays,
			"amount":         warning.Amount,
			"earliestExpiry": warning.EarliestExpiry,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"at": at, "warnings": out})
}
