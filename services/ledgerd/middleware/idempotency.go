package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"partnerledger/storage/sqlstore"
)

// HeaderIdempotencyKey carries the client supplied idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

const maxIdempotentBody = 1 << 20

type contextKey string

const contextKeyIdempotency contextKey = "idempotency-key"

// KeyFromContext returns the idempotency key attached to the request.
func KeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(contextKeyIdempotency).(string)
	return key
}

// Idempotency replays the stored response for a repeated key so mutating
// requests execute once. A key reused with a different method, path or body
// is rejected with 422. Server errors and authentication failures are not
// stored and may be retried.
func Idempotency(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderIdempotencyKey)
			if key == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > 128 {
				http.Error(w, "idempotency key too long", http.StatusBadRequest)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody+1))
			if err != nil {
				http.Error(w, "read request body", http.StatusBadRequest)
				return
			}
			if len(body) > maxIdempotentBody {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			sum := sha256.Sum256(body)
			bodyHash := hex.EncodeToString(sum[:])

			var record sqlstore.IdempotencyKey
			err = db.WithContext(r.Context()).First(&record, "key = ?", key).Error
			switch {
			case err == nil:
				if record.Method != r.Method || record.Path != r.URL.Path || record.BodyHash != bodyHash {
					http.Error(w, "idempotency key reused for a different request", http.StatusUnprocessableEntity)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replay", "true")
				w.WriteHeader(record.Status)
				_, _ = w.Write([]byte(record.Response))
				return
			case !errors.Is(err, gorm.ErrRecordNotFound):
				http.Error(w, "idempotency lookup failed", http.StatusInternalServerError)
				return
			}

			recorder := &responseRecorder{ResponseWriter: w}
			ctx := context.WithValue(r.Context(), contextKeyIdempotency, key)
			next.ServeHTTP(recorder, r.WithContext(ctx))

			status := recorder.status
			if status == 0 {
				status = http.StatusOK
			}
			if !storable(status) {
				return
			}
			payload := sqlstore.IdempotencyKey{
				Key:       key,
				RequestID: uuid.NewString(),
				Method:    r.Method,
				Path:      r.URL.Path,
				BodyHash:  bodyHash,
				Status:    status,
				Response:  recorder.buf.String(),
				CreatedAt: time.Now().UTC(),
			}
			_ = db.WithContext(context.WithoutCancel(r.Context())).
				Clauses(clause.OnConflict{DoNothing: true}).
				Create(&payload).Error
		})
	}
}

func storable(status int) bool {
	switch {
	case status >= http.StatusInternalServerError:
		return false
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return false
	}
	return true
}

// responseRecorder captures the response for idempotent operations.
type responseRecorder struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (rr *responseRecorder) WriteHeader(status int) {
	rr.status = status
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	rr.buf.Write(b)
	return rr.ResponseWriter.Write(b)
}
