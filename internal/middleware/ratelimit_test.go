package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fakeClock returns a limiter whose clock only moves when advance is called.
func fakeClock() (*RateLimiter, func(time.Duration)) {
	now := time.Date(2025, 10, 15, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter()
	rl.now = func() time.Time { return now }
	return rl, func(d time.Duration) { now = now.Add(d) }
}

func TestTakeWindow(t *testing.T) {
	rl, advance := fakeClock()

	for i := range 3 {
		if ok, _ := rl.Take("signin:1.2.3.4", 3, time.Minute); !ok {
			t.Fatalf("hit %d rejected", i+1)
		}
	}

	advance(20 * time.Second)
	ok, wait := rl.Take("signin:1.2.3.4", 3, time.Minute)
	if ok {
		t.Fatal("4th hit in the window should be rejected")
	}
	if wait != 40*time.Second {
		t.Errorf("wait = %v, want 40s", wait)
	}

	if ok, _ := rl.Take("signin:5.6.7.8", 3, time.Minute); !ok {
		t.Error("other keys have their own window")
	}

	advance(40 * time.Second)
	if ok, _ := rl.Take("signin:1.2.3.4", 3, time.Minute); !ok {
		t.Error("hit after the window resets should pass")
	}
}

func TestSweep(t *testing.T) {
	rl, advance := fakeClock()

	rl.Take("invite:1", 5, time.Minute)
	advance(2 * time.Minute)
	rl.Take("invite:2", 5, time.Hour)

	if n := rl.Sweep(); n != 1 {
		t.Errorf("swept %d, want 1", n)
	}
	if _, ok := rl.windows["invite:1"]; ok {
		t.Error("reset window should be gone")
	}
	if _, ok := rl.windows["invite:2"]; !ok {
		t.Error("live window should remain")
	}
}

func TestLimitMiddleware(t *testing.T) {
	rl, advance := fakeClock()
	byUser := func(r *http.Request) string { return "invite:" + r.Header.Get("X-User") }
	h := Limit(rl, byUser, 1, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	send := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/group/invite/email", nil)
		req.Header.Set("X-User", user)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := send("alice"); rec.Code != http.StatusAccepted {
		t.Fatalf("first = %d, want 202", rec.Code)
	}

	advance(90 * time.Second)
	rec := send("alice")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "3510" {
		t.Errorf("Retry-After = %q, want 3510", got)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
		t.Errorf("body = %q, want JSON error", rec.Body.String())
	}

	if rec := send("bob"); rec.Code != http.StatusAccepted {
		t.Errorf("bob = %d, want 202", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "2.2.2.2, 10.0.0.1", "X-Real-IP": "9.9.9.9"}, "3.3.3.3:80", "2.2.2.2"},
		{"forwarded blank hop", map[string]string{"X-Forwarded-For": " , 10.0.0.1", "X-Real-IP": "9.9.9.9"}, "3.3.3.3:80", "9.9.9.9"},
		{"real ip", map[string]string{"X-Real-IP": " 9.9.9.9 "}, "3.3.3.3:80", "9.9.9.9"},
		{"peer", nil, "3.3.3.3:80", "3.3.3.3"},
		{"peer without port", nil, "3.3.3.3", "3.3.3.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
