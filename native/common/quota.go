package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaCountExceeded   = errors.New("quota count exceeded")
	ErrQuotaAmountExceeded  = errors.New("quota amount exceeded")
	ErrQuotaCounterOverflow = errors.New("quota counter overflow")
)

// QuotaUsage captures the running tally for one key within a window.
type QuotaUsage struct {
	Count  uint32
	Amount int64
	Window uint64
}

// Quota defines the limits enforced per key and window. Zero disables a limit.
type Quota struct {
	MaxCount  uint32
	MaxAmount int64
}

// CheckQuota verifies whether the additional count and amount fit within the
// configured quota. The returned usage reflects the updated counters when the
// quota is not exceeded; on denial prev is returned unchanged. A usage from an
// older window is reset before the check.
func CheckQuota(q Quota, window uint64, prev QuotaUsage, addCount uint32, addAmount int64) (QuotaUsage, error) {
	next := prev
	if prev.Window != window {
		next = QuotaUsage{Window: window}
	}

	if addCount > 0 {
		if next.Count > math.MaxUint32-addCount {
			return prev, ErrQuotaCounterOverflow
		}
		next.Count += addCount
	}
	if q.MaxCount > 0 && next.Count > q.MaxCount {
		return prev, ErrQuotaCountExceeded
	}

	if addAmount > 0 {
		if next.Amount > math.MaxInt64-addAmount {
			return prev, ErrQuotaCounterOverflow
		}
		next.Amount += addAmount
	}
	if q.MaxAmount > 0 && next.Amount > q.MaxAmount {
		return prev, ErrQuotaAmountExceeded
	}

	return next, nil
}

// DayWindow maps a unix timestamp onto its UTC day index.
func DayWindow(unix int64) uint64 {
	if unix < 0 {
		return 0
	}
	return uint64(unix / 86400)
}
