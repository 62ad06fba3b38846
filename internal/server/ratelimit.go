package server

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/alfredjeanlab/threadlive/internal/model"
)

const (
	defaultAnswersPerHour = 5
	limiterCacheSize      = 10000
)

// answerLimiter is a per-user token bucket for answer submissions. Buckets
// live in an LRU, so a user evicted from it starts over with a full bucket.
type answerLimiter struct {
	perHour  int
	limiters *lru.Cache[int64, *rate.Limiter]
}

func newAnswerLimiter(perHour int) *answerLimiter {
	if perHour <= 0 {
		perHour = defaultAnswersPerHour
	}
	cache, err := lru.New[int64, *rate.Limiter](limiterCacheSize)
	if err != nil {
		panic(err)
	}
	return &answerLimiter{perHour: perHour, limiters: cache}
}

// allow consumes one submission for userID.
func (l *answerLimiter) allow(userID int64) error {
	lim, ok := l.limiters.Get(userID)
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Hour/time.Duration(l.perHour)), l.perHour)
		if prev, found, _ := l.limiters.PeekOrAdd(userID, lim); found {
			lim = prev
		}
	}
	if !lim.Allow() {
		return fmt.Errorf("%w: at most %d answers per hour", model.ErrRateLimited, l.perHour)
	}
	return nil
}
