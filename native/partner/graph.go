package partner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ledgererrors "partnerledger/core/errors"
)

var (
	ErrSelfReferral    = errors.New("partner: user cannot refer themselves")
	ErrAlreadyReferred = errors.New("partner: user already has an upline partner")
	ErrReferralCycle   = errors.New("partner: link would create a referral cycle")
	ErrInvalidUser     = errors.New("partner: user id required")
	errNilGraphState   = errors.New("partner: graph state not configured")
)

// GraphState is the persistence contract of the referral graph.
type GraphState interface {
	ReferrerOf(ctx context.Context, userID string) (string, bool, error)
	DirectReferrals(ctx context.Context, partnerID string) ([]Referral, error)
	PutReferral(ctx context.Context, referral Referral) error
}

// Graph answers upline and downline questions over the referral tree.
type Graph struct {
	state GraphState
	nowFn func() time.Time
}

// NewGraph wraps the provided state.
func NewGraph(state GraphState) *Graph {
	return &Graph{state: state, nowFn: time.Now}
}

// SetNowFunc overrides the clock used to stamp new links.
func (g *Graph) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	g.nowFn = now
}

// Link records partnerID as the upline of referralID.
func (g *Graph) Link(ctx context.Context, partnerID, referralID string) (*Referral, error) {
	if g == nil || g.state == nil {
		return nil, errNilGraphState
	}
	partnerID = strings.TrimSpace(partnerID)
	referralID = strings.TrimSpace(referralID)
	if partnerID == "" || referralID == "" {
		return nil, ErrInvalidUser
	}
	if partnerID == referralID {
		return nil, ErrSelfReferral
	}
	if existing, ok, err := g.state.ReferrerOf(ctx, referralID); err != nil {
		return nil, err
	} else if ok {
		if existing == partnerID {
			return &Referral{PartnerID: partnerID, ReferralID: referralID}, nil
		}
		return nil, ErrAlreadyReferred
	}
	// Refuse the link when referralID already sits above partnerID.
	visited := map[string]struct{}{partnerID: {}}
	cur := partnerID
	for {
		up, ok, err := g.state.ReferrerOf(ctx, cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if up == referralID {
			return nil, ErrReferralCycle
		}
		if _, seen := visited[up]; seen {
			return nil, &ledgererrors.InvariantViolationError{Detail: fmt.Sprintf("referral cycle above %s", partnerID)}
		}
		visited[up] = struct{}{}
		cur = up
	}
	referral := Referral{PartnerID: partnerID, ReferralID: referralID, CreatedAt: g.nowFn().UTC()}
	if err := g.state.PutReferral(ctx, referral); err != nil {
		return nil, err
	}
	return &referral, nil
}

// Upline returns the partners above userID, nearest first, stopping after
// maxDepth hops or when the chain ends. A user repeated within the walk
// (including userID itself) is reported as an invariant violation.
func (g *Graph) Upline(ctx context.Context, userID string, maxDepth int) ([]string, error) {
	if g == nil || g.state == nil {
		return nil, errNilGraphState
	}
	chain := make([]string, 0, maxDepth)
	visited := map[string]struct{}{userID: {}}
	cur := userID
	for depth := 1; depth <= maxDepth; depth++ {
		up, ok, err := g.state.ReferrerOf(ctx, cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if _, seen := visited[up]; seen {
			return nil, &ledgererrors.InvariantViolationError{
				Detail: fmt.Sprintf("referral cycle: %s reappears at depth %d above %s", up, depth, userID),
			}
		}
		visited[up] = struct{}{}
		chain = append(chain, up)
		cur = up
	}
	return chain, nil
}

// Downline returns every user below partnerID down to maxDepth levels,
// breadth first.
func (g *Graph) Downline(ctx context.Context, partnerID string, maxDepth int) ([]TeamMember, error) {
	if g == nil || g.state == nil {
		return nil, errNilGraphState
	}
	var team []TeamMember
	visited := map[string]struct{}{partnerID: {}}
	frontier := []string{partnerID}
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			referrals, err := g.state.DirectReferrals(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, ref := range referrals {
				if _, seen := visited[ref.ReferralID]; seen {
					continue
				}
				visited[ref.ReferralID] = struct{}{}
				team = append(team, TeamMember{UserID: ref.ReferralID, Depth: depth})
				next = append(next, ref.ReferralID)
			}
		}
		frontier = next
	}
	return team, nil
}
