package partner

import (
	"context"
	"errors"
	"time"

	"partnerledger/native/rates"
)

// ActiveWindow is how recent a purchase must be for a direct referral to
// count as active.
const ActiveWindow = 30 * 24 * time.Hour

var errNilStatsState = errors.New("partner: stats state not configured")

// StatsState exposes the purchase and commission aggregates the stats service
// folds together.
type StatsState interface {
	PurchaseVolume(ctx context.Context, userIDs []string) (int64, error)
	ActivePurchasers(ctx context.Context, userIDs []string, since time.Time) (int64, error)
	CommissionTotals(ctx context.Context, partnerID string) (paid int64, pending int64, err error)
}

// Service computes partner statistics and levels on demand. Levels are never
// stored.
type Service struct {
	graph  *Graph
	state  StatsState
	tables *rates.Tables
	nowFn  func() time.Time
}

// NewService wires the graph, aggregate state and rate tables.
func NewService(graph *Graph, state StatsState, tables *rates.Tables) *Service {
	return &Service{graph: graph, state: state, tables: tables, nowFn: time.Now}
}

// SetNowFunc overrides the clock used for the activity window.
func (s *Service) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.nowFn = now
}

// Graph exposes the referral graph used by the service.
func (s *Service) Graph() *Graph { return s.graph }

// Stats aggregates the partner's team and commission figures.
func (s *Service) Stats(ctx context.Context, partnerID string) (Stats, error) {
	if s == nil || s.state == nil || s.graph == nil {
		return Stats{}, errNilStatsState
	}
	stats := Stats{PartnerID: partnerID}
	team, err := s.graph.Downline(ctx, partnerID, s.tables.MaxDepth())
	if err != nil {
		return Stats{}, err
	}
	direct := make([]string, 0, len(team))
	members := make([]string, 0, len(team))
	for _, member := range team {
		members = append(members, member.UserID)
		if member.Depth == 1 {
			direct = append(direct, member.UserID)
		}
	}
	stats.TotalReferrals = int64(len(direct))
	stats.TeamSize = int64(len(members))
	if len(direct) > 0 {
		since := s.nowFn().UTC().Add(-ActiveWindow)
		if stats.ActiveReferrals, err = s.state.ActivePurchasers(ctx, direct, since); err != nil {
			return Stats{}, err
		}
	}
	if len(members) > 0 {
		if stats.TeamVolume, err = s.state.PurchaseVolume(ctx, members); err != nil {
			return Stats{}, err
		}
	}
	if stats.TotalEarned, stats.PendingCommissions, err = s.state.CommissionTotals(ctx, partnerID); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// LevelStatus evaluates the partner's current level from fresh statistics.
func (s *Service) LevelStatus(ctx context.Context, partnerID string) (Stats, LevelStatus, error) {
	stats, err := s.Stats(ctx, partnerID)
	if err != nil {
		return Stats{}, LevelStatus{}, err
	}
	return stats, Evaluate(s.tables, stats), nil
}
