package server

import (
	"strconv"
	"time"

	"partnerledger/native/bonus"
	"partnerledger/native/commission"
	"partnerledger/native/partner"
	"partnerledger/native/rates"
	"partnerledger/native/withdrawal"
)

type entryView struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Seq         int64      `json:"seq"`
	Type        string     `json:"type"`
	Source      string     `json:"source,omitempty"`
	Amount      int64      `json:"amount"`
	Signed      int64      `json:"signedAmount"`
	ReferenceID string     `json:"referenceId,omitempty"`
	Activity    string     `json:"activity,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Memo        string     `json:"memo,omitempty"`
	Actor       string     `json:"actor,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func newEntryView(t *bonus.Transaction) *entryView {
	if t == nil {
		return nil
	}
	return &entryView{
		ID:          t.ID,
		UserID:      t.UserID,
		Seq:         t.Seq,
		Type:        string(t.Type),
		Source:      string(t.Source),
		Amount:      t.Amount,
		Signed:      t.Signed(),
		ReferenceID: t.ReferenceID,
		Activity:    string(t.ActivityType),
		ExpiresAt:   t.ExpiresAt,
		Memo:        t.Memo,
		Actor:       t.Actor,
		CreatedAt:   t.CreatedAt,
	}
}

type bonusStatsView struct {
	UserID         string           `json:"userId"`
	Balance        int64            `json:"balance"`
	Available      int64            `json:"available"`
	Held           int64            `json:"held"`
	TotalEarned    int64            `json:"totalEarned"`
	TotalSpent     int64            `json:"totalSpent"`
	TotalWithdrawn int64            `json:"totalWithdrawn"`
	TotalExpired   int64            `json:"totalExpired"`
	NetAdjusted    int64            `json:"netAdjusted"`
	NextExpiry     *time.Time       `json:"nextExpiry,omitempty"`
	Expiring       map[string]int64 `json:"expiringWithinDays,omitempty"`
}

func newBonusStatsView(st bonus.Stats) bonusStatsView {
	view := bonusStatsView{
		UserID:         st.UserID,
		Balance:        st.Balance,
		Available:      st.Available,
		Held:           st.Held,
		TotalEarned:    st.TotalEarned,
		TotalSpent:     st.TotalSpent,
		TotalWithdrawn: st.TotalWithdrawn,
		TotalExpired:   st.TotalExpired,
		NetAdjusted:    st.NetAdjusted,
		NextExpiry:     st.NextExpiry,
	}
	if len(st.Expiring) > 0 {
		view.Expiring = make(map[string]int64, len(st.Expiring))
		for days, amount := range st.Expiring {
			view.Expiring[strconv.Itoa(days)] = amount
		}
	}
	return view
}

type commissionView struct {
	ID                  string     `json:"id"`
	PartnerID           string     `json:"partnerId"`
	SourceUserID        string     `json:"sourceUserId"`
	SourceTransactionID string     `json:"sourceTransactionId"`
	Level               int        `json:"level"`
	Amount              int64      `json:"amount"`
	Status              string     `json:"status"`
	CreatedAt           time.Time  `json:"createdAt"`
	ApprovedAt          *time.Time `json:"approvedAt,omitempty"`
	ApprovedBy          string     `json:"approvedBy,omitempty"`
	PaidAt              *time.Time `json:"paidAt,omitempty"`
	PayoutRef           string     `json:"payoutRef,omitempty"`
	CancelledAt         *time.Time `json:"cancelledAt,omitempty"`
	CancelReason        string     `json:"cancelReason,omitempty"`
}

func newCommissionView(c *commission.Commission) commissionView {
	return commissionView{
		ID:                  c.ID,
		PartnerID:           c.PartnerID,
		SourceUserID:        c.SourceUserID,
		SourceTransactionID: c.SourceTransactionID,
		Level:               c.Level,
		Amount:              c.Amount,
		Status:              string(c.Status),
		CreatedAt:           c.CreatedAt,
		ApprovedAt:          c.ApprovedAt,
		ApprovedBy:          c.ApprovedBy,
		PaidAt:              c.PaidAt,
		PayoutRef:           c.PayoutRef,
		CancelledAt:         c.CancelledAt,
		CancelReason:        c.CancelReason,
	}
}

func newCommissionViews(rows []*commission.Commission) []commissionView {
	out := make([]commissionView, 0, len(rows))
	for _, c := range rows {
		out = append(out, newCommissionView(c))
	}
	return out
}

type quoteView struct {
	Amount     int64  `json:"amount"`
	TaxStatus  string `json:"taxStatus"`
	TaxRateBps uint32 `json:"taxRateBps"`
	TaxAmount  int64  `json:"taxAmount"`
	NetAmount  int64  `json:"netAmount"`
}

func newQuoteView(q withdrawal.TaxQuote) quoteView {
	return quoteView{
		Amount:     q.Amount,
		TaxStatus:  string(q.TaxStatus),
		TaxRateBps: q.TaxRateBps,
		TaxAmount:  q.TaxAmount,
		NetAmount:  q.NetAmount,
	}
}

type withdrawalView struct {
	ID              string                    `json:"id"`
	UserID          string                    `json:"userId"`
	Amount          int64                     `json:"amount"`
	TaxStatus       string                    `json:"taxStatus"`
	TaxRateBps      uint32                    `json:"taxRateBps"`
	TaxAmount       int64                     `json:"taxAmount"`
	NetAmount       int64                     `json:"netAmount"`
	PaymentKind     string                    `json:"paymentKind,omitempty"`
	Payment         withdrawal.PaymentDetails `json:"payment,omitempty"`
	Status          string                    `json:"status"`
	ReviewedBy      string                    `json:"reviewedBy,omitempty"`
	RejectionReason string                    `json:"rejectionReason,omitempty"`
	PayoutRef       string                    `json:"payoutRef,omitempty"`
	LedgerEntryID   string                    `json:"ledgerEntryId,omitempty"`
	CreatedAt       time.Time                 `json:"createdAt"`
	UpdatedAt       time.Time                 `json:"updatedAt"`
	ApprovedAt      *time.Time                `json:"approvedAt,omitempty"`
	CompletedAt     *time.Time                `json:"completedAt,omitempty"`
	RejectedAt      *time.Time                `json:"rejectedAt,omitempty"`
}

func newWithdrawalView(r *withdrawal.Request) withdrawalView {
	view := withdrawalView{
		ID:              r.ID,
		UserID:          r.UserID,
		Amount:          r.Amount,
		TaxStatus:       string(r.TaxStatus),
		TaxRateBps:      r.TaxRateBps,
		TaxAmount:       r.TaxAmount,
		NetAmount:       r.NetAmount,
		Status:          string(r.Status),
		ReviewedBy:      r.ReviewedBy,
		RejectionReason: r.RejectionReason,
		PayoutRef:       r.PayoutRef,
		LedgerEntryID:   r.LedgerEntryID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ApprovedAt:      r.ApprovedAt,
		CompletedAt:     r.CompletedAt,
		RejectedAt:      r.RejectedAt,
	}
	if r.Payment != nil {
		view.PaymentKind = string(r.Payment.Kind())
		view.Payment = r.Payment.Masked()
	}
	return view
}

type levelView struct {
	Number               int    `json:"number"`
	Name                 string `json:"name"`
	DisplayCommissionBps uint32 `json:"displayCommissionBps"`
	MinReferrals         int64  `json:"minReferrals"`
	MinTeamVolume        int64  `json:"minTeamVolume"`
}

func newLevelView(l rates.PartnerLevel) levelView {
	return levelView{
		Number:               l.Number,
		Name:                 l.Name,
		DisplayCommissionBps: l.DisplayCommissionBps,
		MinReferrals:         l.MinReferrals,
		MinTeamVolume:        l.MinTeamVolume,
	}
}

type progressView struct {
	Next               levelView `json:"next"`
	RemainingReferrals int64     `json:"remainingReferrals"`
	RemainingVolume    int64     `json:"remainingVolume"`
	Percent            int       `json:"percent"`
}

type partnerStatsView struct {
	PartnerID          string        `json:"partnerId"`
	TotalReferrals     int64         `json:"totalReferrals"`
	ActiveReferrals    int64         `json:"activeReferrals"`
	TeamSize           int64         `json:"teamSize"`
	TeamVolume         int64         `json:"teamVolume"`
	TotalEarned        int64         `json:"totalEarned"`
	PendingCommissions int64         `json:"pendingCommissions"`
	Level              levelView     `json:"level"`
	Progress           *progressView `json:"progress,omitempty"`
}

func newPartnerStatsView(st partner.Stats, level partner.LevelStatus) partnerStatsView {
	view := partnerStatsView{
		PartnerID:          st.PartnerID,
		TotalReferrals:     st.TotalReferrals,
		ActiveReferrals:    st.ActiveReferrals,
		TeamSize:           st.TeamSize,
		TeamVolume:         st.TeamVolume,
		TotalEarned:        st.TotalEarned,
		PendingCommissions: st.PendingCommissions,
		Level:              newLevelView(level.Current),
	}
	if level.Progress != nil {
		view.Progress = &progressView{
			Next:               newLevelView(level.Progress.Next),
			RemainingReferrals: level.Progress.RemainingReferrals,
			RemainingVolume:    level.Progress.RemainingVolume,
			Percent:            level.Progress.Percent,
		}
	}
	return view
}
