package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/stretchr/testify/assert"
)

func elapsed(f func()) time.Duration {
	start := time.Now()
	f()
	return time.Since(start)
}

func TestTimingDelay_Wait(t *testing.T) {
	delay := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 50, RandomDelayMs: 20})

	d := elapsed(func() { delay.Wait(false) })
	assert.GreaterOrEqual(t, d, 50*time.Millisecond)
	assert.Less(t, d, 150*time.Millisecond)

	assert.Less(t, elapsed(func() { delay.Wait(true) }), 10*time.Millisecond, "success is not delayed by default")

	always := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 50, DelayOnSuccess: true})
	assert.GreaterOrEqual(t, elapsed(func() { always.Wait(true) }), 50*time.Millisecond)
}

func TestTimingDelay_WaitFrom(t *testing.T) {
	delay := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 80})

	start := time.Now()
	time.Sleep(30 * time.Millisecond)
	delay.WaitFrom(start, false)
	total := time.Since(start)
	assert.GreaterOrEqual(t, total, 80*time.Millisecond)
	assert.Less(t, total, 130*time.Millisecond)

	start = time.Now()
	time.Sleep(100 * time.Millisecond)
	assert.Less(t, elapsed(func() { delay.WaitFrom(start, false) }), 10*time.Millisecond)
}

func TestAuthMiddleware_DelaysRejections(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, "sentinel")
	delay := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 40})
	h := auth.AuthMiddleware(tm, delay, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	d := elapsed(func() {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
	assert.GreaterOrEqual(t, d, 40*time.Millisecond)
}
