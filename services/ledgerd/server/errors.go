package server

import (
	"errors"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	ledgererrors "partnerledger/core/errors"
	"partnerledger/native/bonus"
	"partnerledger/native/commission"
	"partnerledger/native/common"
	"partnerledger/native/partner"
	"partnerledger/native/withdrawal"
)

// apiError is the JSON error body.
type apiError struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type badRequest string

func (e badRequest) Error() string { return string(e) }

func errBadRequest(msg string) error { return badRequest(msg) }

var (
	notFound = []error{
		commission.ErrNotFound,
		withdrawal.ErrNotFound,
	}
	conflicts = []error{
		commission.ErrStaleStatus,
		partner.ErrAlreadyReferred,
		partner.ErrReferralCycle,
	}
	limited = []error{
		bonus.ErrActivityLimit,
	}
	validation = []error{
		bonus.ErrInvalidAmount,
		bonus.ErrInvalidUser,
		bonus.ErrInvalidSource,
		bonus.ErrActivityRequired,
		bonus.ErrInvalidExpiry,
		bonus.ErrReferenceRequired,
		bonus.ErrReasonRequired,
		bonus.ErrCheckoutCapExceeded,
		commission.ErrInvalidAmount,
		commission.ErrInvalidTransaction,
		partner.ErrSelfReferral,
		partner.ErrInvalidUser,
		withdrawal.ErrInvalidAmount,
		withdrawal.ErrInvalidUser,
		withdrawal.ErrReasonRequired,
		withdrawal.ErrPaymentRequired,
		withdrawal.ErrInvalidCard,
		withdrawal.ErrInvalidAccount,
		withdrawal.ErrInvalidBIC,
		withdrawal.ErrHolderRequired,
		withdrawal.ErrUnknownPaymentKind,
	}
)

// classify maps err to an HTTP status and response body.
func classify(err error) (int, apiError) {
	body := apiError{Message: err.Error()}

	var br badRequest
	if errors.As(err, &br) {
		body.Error = "bad_request"
		return http.StatusBadRequest, body
	}

	if errors.Is(err, common.ErrModulePaused) {
		body.Error = "paused"
		return http.StatusServiceUnavailable, body
	}

	if kind := ledgererrors.Kind(err); kind != "" {
		body.Error = kind
		body.Details = details(err)
		switch {
		case errors.Is(err, ledgererrors.ErrInsufficientBalance), errors.Is(err, ledgererrors.ErrBelowMinimum):
			return http.StatusUnprocessableEntity, body
		case errors.Is(err, ledgererrors.ErrAlreadyGranted), errors.Is(err, ledgererrors.ErrInvalidStateTransition):
			return http.StatusConflict, body
		default:
			return http.StatusInternalServerError, body
		}
	}

	for _, target := range notFound {
		if errors.Is(err, target) {
			body.Error = "not_found"
			return http.StatusNotFound, body
		}
	}
	for _, target := range limited {
		if errors.Is(err, target) {
			body.Error = "limit_reached"
			return http.StatusTooManyRequests, body
		}
	}
	for _, target := range conflicts {
		if errors.Is(err, target) {
			body.Error = "conflict"
			return http.StatusConflict, body
		}
	}
	for _, target := range validation {
		if errors.Is(err, target) {
			body.Error = "validation"
			return http.StatusUnprocessableEntity, body
		}
	}
	body.Error = "internal"
	body.Message = "internal error"
	return http.StatusInternalServerError, body
}

func details(err error) map[string]any {
	var (
		insufficient *ledgererrors.InsufficientBalanceError
		belowMinimum *ledgererrors.BelowMinimumError
		granted      *ledgererrors.AlreadyGrantedError
		config       *ledgererrors.ConfigurationError
		transition   *ledgererrors.InvalidStateTransitionError
	)
	switch {
	case errors.As(err, &insufficient):
		return map[string]any{"userId": insufficient.UserID, "requested": insufficient.Requested, "available": insufficient.Available}
	case errors.As(err, &belowMinimum):
		return map[string]any{"requested": belowMinimum.Requested, "minimum": belowMinimum.Minimum}
	case errors.As(err, &granted):
		return map[string]any{"userId": granted.UserID, "activity": granted.Activity}
	case errors.As(err, &config):
		return map[string]any{"table": config.Table, "key": config.Key}
	case errors.As(err, &transition):
		return map[string]any{"entity": transition.Entity, "id": transition.ID, "from": transition.From, "to": transition.To}
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("requestId", chimw.GetReqID(r.Context())),
			slog.String("error", err.Error()))
	}
	s.writeJSON(w, status, body)
}
