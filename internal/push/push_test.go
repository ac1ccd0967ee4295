package push

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/dukerupert/coolive/internal/model"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	// Uncompressed P-256 point.
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func TestConfigEnabled(t *testing.T) {
	if (Config{VAPIDPublicKey: "pub"}).Enabled() {
		t.Error("expected disabled without private key")
	}
	if !(Config{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"}).Enabled() {
		t.Error("expected enabled with both keys")
	}
}

// fakeSender records deliveries and answers with a status per endpoint.
type fakeSender struct {
	mu       sync.Mutex
	status   map[string]int
	payloads []Payload
}

func (f *fakeSender) send(ctx context.Context, data []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	f.payloads = append(f.payloads, p)
	code, ok := f.status[sub.Endpoint]
	if !ok {
		code = http.StatusCreated
	}
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(""))}, nil
}

func newTestService(f *fakeSender) *Service {
	svc := NewService(Config{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"})
	svc.send = f.send
	return svc
}

func TestSendStatusMapping(t *testing.T) {
	f := &fakeSender{status: map[string]int{
		"https://push.example/gone":  http.StatusGone,
		"https://push.example/error": http.StatusInternalServerError,
	}}
	svc := newTestService(f)
	ctx := context.Background()

	if err := svc.Send(ctx, &model.PushSubscription{Endpoint: "https://push.example/ok"}, Payload{Title: "x"}); err != nil {
		t.Errorf("ok endpoint: %v", err)
	}
	if err := svc.Send(ctx, &model.PushSubscription{Endpoint: "https://push.example/gone"}, Payload{}); !errors.Is(err, ErrExpired) {
		t.Errorf("gone endpoint: err = %v, want ErrExpired", err)
	}
	if err := svc.Send(ctx, &model.PushSubscription{Endpoint: "https://push.example/error"}, Payload{}); err == nil {
		t.Error("error endpoint: expected error")
	}
}

type memSubs struct {
	mu      sync.Mutex
	byUser  map[int64][]model.PushSubscription
	deleted []string
}

func (m *memSubs) ListByUser(ctx context.Context, userID int64) ([]model.PushSubscription, error) {
	return m.byUser[userID], nil
}

func (m *memSubs) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, endpoint)
	return nil
}

func TestNotifyAssigned(t *testing.T) {
	f := &fakeSender{status: map[string]int{"https://push.example/bob-old": http.StatusGone}}
	subs := &memSubs{byUser: map[int64][]model.PushSubscription{
		1: {{ID: 1, UserID: 1, Endpoint: "https://push.example/alice"}},
		2: {
			{ID: 2, UserID: 2, Endpoint: "https://push.example/bob"},
			{ID: 3, UserID: 2, Endpoint: "https://push.example/bob-old"},
		},
	}}
	n := NewNotifier(newTestService(f), subs, slog.New(slog.NewTextHandler(io.Discard, nil)))

	task := model.Task{ID: 9, Title: "Fregar plats", Points: 10}
	delivered := n.NotifyAssigned(context.Background(), task, []int64{1, 2}, 1)

	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
	if len(f.payloads) != 2 {
		t.Fatalf("sends = %d, want 2 (creator skipped)", len(f.payloads))
	}
	if f.payloads[0].Body != "Fregar plats (10 points)" {
		t.Errorf("body = %q", f.payloads[0].Body)
	}
	if len(subs.deleted) != 1 || subs.deleted[0] != "https://push.example/bob-old" {
		t.Errorf("deleted = %v, want expired endpoint removed", subs.deleted)
	}
}

func TestNotifyAssignedNoTargets(t *testing.T) {
	f := &fakeSender{}
	n := NewNotifier(newTestService(f), &memSubs{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if got := n.NotifyAssigned(context.Background(), model.Task{ID: 1}, []int64{1}, 1); got != 0 {
		t.Errorf("delivered = %d, want 0", got)
	}
	if len(f.payloads) != 0 {
		t.Errorf("sends = %d, want 0", len(f.payloads))
	}
}
