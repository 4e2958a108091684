package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/scythe504/zombie-mafia-backend/internal/utils"
)

const memberHeader = "X-Member-Id"

var errTooManyRequests = errors.New("too-many-requests")

type ctxKey int

const (
	roomIDKey ctxKey = iota
	memberIDKey
)

// memberMiddleware resolves the room from the path and the caller from the
// X-Member-Id header. Authentication happens upstream.
func (s *Server) memberMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now().UnixMilli()

		roomID, err := utils.ParseID(mux.Vars(r)["roomId"])
		if err != nil {
			writeError(w, start, errBadRequest(err))
			return
		}
		memberID, err := utils.ParseID(r.Header.Get(memberHeader))
		if err != nil {
			writeError(w, start, errBadRequest(err))
			return
		}

		ctx := context.WithValue(r.Context(), roomIDKey, roomID)
		ctx = context.WithValue(ctx, memberIDKey, memberID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func roomAndMember(r *http.Request) (roomID, memberID int64) {
	roomID, _ = r.Context().Value(roomIDKey).(int64)
	memberID, _ = r.Context().Value(memberIDKey).(int64)
	return roomID, memberID
}

// memberLimiter keeps one token bucket per member.
type memberLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newMemberLimiter(perSecond float64, burst int) *memberLimiter {
	return &memberLimiter{
		limiters: make(map[int64]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *memberLimiter) allow(memberID int64) bool {
	l.mu.Lock()
	lim, ok := l.limiters[memberID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[memberID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		roomID, memberID := roomAndMember(r)
		if !s.limiter.allow(memberID) {
			log.Warn().Int64("room", roomID).Int64("member", memberID).Str("path", r.URL.Path).
				Msg("[rateLimit] action rejected")
			writeError(w, time.Now().UnixMilli(), errTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
