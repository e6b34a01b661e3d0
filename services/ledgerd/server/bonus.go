package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"partnerledger/native/bonus"
	"partnerledger/native/rates"
	"partnerledger/services/ledgerd/auth"
)

// GetBonusStats returns the user's balance summary.
func (s *Server) GetBonusStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newBonusStatsView(stats))
}

// GetBonusHistory returns the user's latest ledger entries, newest first.
func (s *Server) GetBonusHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	history, err := s.ledger.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]*entryView, 0, len(history))
	for i := range history {
		out = append(out, newEntryView(&history[i]))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// GetBonusExpiring sums the user's bonus expiring within ?days= (default 30).
func (s *Server) GetBonusExpiring(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 30)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if days <= 0 || days > 366 {
		s.writeError(w, r, errBadRequest("days must be between 1 and 366"))
		return
	}
	userID := chi.URLParam(r, "id")
	amount, err := s.ledger.ExpiringWithin(r.Context(), userID, days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"userId": userID, "days": days, "amount": amount})
}

type activityRequest struct {
	UserID      string `json:"userId"`
	Activity    string `json:"activity"`
	ReferenceID string `json:"referenceId"`
}

// GrantActivity credits the configured bonus for a user activity.
func (s *Server) GrantActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !s.decode(w, r, &req) {
		return
	}
	entry, err := s.ledger.GrantActivity(r.Context(), req.UserID, rates.ParseActivityType(req.Activity), req.ReferenceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newEntryView(entry))
}

type adjustRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

// AdjustBonus appends a manual ADJUSTMENT entry.
func (s *Server) AdjustBonus(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !s.decode(w, r, &req) {
		return
	}
	entry, err := s.ledger.Adjust(r.Context(), chi.URLParam(r, "userID"), req.Delta, req.Reason, auth.Actor(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newEntryView(entry))
}

// AuditBonus replays the user's entries against the stored balance; ?repair=true
// corrects drift.
func (s *Server) AuditBonus(w http.ResponseWriter, r *http.Request) {
	repair, _ := strconv.ParseBool(r.URL.Query().Get("repair"))
	rep, err := s.ledger.Audit(r.Context(), chi.URLParam(r, "userID"), repair)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, auditView(rep))
}

func auditView(rep bonus.AuditReport) map[string]any {
	return map[string]any{
		"userId":    rep.UserID,
		"projected": rep.Projected,
		"folded":    rep.Folded,
		"drift":     rep.Drift,
		"repaired":  rep.Repaired,
	}
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errBadRequest(key + " must be an integer")
	}
	return v, nil
}
