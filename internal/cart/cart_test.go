package cart

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"cartsync/internal/gateway"
	"cartsync/internal/model"
)

// Poller and push-back goroutines must all exit by the end of each test.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeAuth is a settable Authenticator.
type fakeAuth struct {
	mu sync.Mutex
	on bool
}

func (a *fakeAuth) Authenticated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.on
}

func (a *fakeAuth) set(on bool) {
	a.mu.Lock()
	a.on = on
	a.mu.Unlock()
}

// call records one gateway call made by the reconciler.
type call struct {
	op        string
	productID int64
	quantity  int
}

// recorder collects gateway calls from any goroutine.
type recorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *recorder) add(c call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

func (r *recorder) ops(op string) []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []call
	for _, c := range r.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func cartLine(id int64, name string, qty, stock int, price float64) model.CartLine {
	return model.CartLine{
		ProductID:      id,
		ProductName:    name,
		ProductPhoto:   name + ".png",
		ProductPrice:   price,
		Quantity:       qty,
		AvailableStock: stock,
		TotalPrice:     float64(qty) * price,
	}
}

func cartData(lines ...model.CartLine) *model.CartData {
	items := make([]model.CartLine, len(lines))
	copy(items, lines)
	return &model.CartData{Items: items, TotalItems: len(items)}
}

// newTestReconciler returns a logged-in reconciler over mock.
func newTestReconciler(t *testing.T, mock *gateway.Mock) (*Reconciler, *fakeAuth) {
	t.Helper()
	auth := &fakeAuth{on: true}
	rec := NewReconciler(mock, auth, Options{Logger: testLogger()})
	t.Cleanup(rec.Close)
	return rec, auth
}

// seed loads lines into rec through a full fetch.
func seed(t *testing.T, rec *Reconciler, mock *gateway.Mock, lines ...model.CartLine) {
	t.Helper()
	prev := mock.FetchCartFunc
	mock.FetchCartFunc = func(ctx context.Context) (*model.CartData, error) {
		return cartData(lines...), nil
	}
	if err := rec.Load(context.Background()); err != nil {
		t.Fatalf("seed Load: %v", err)
	}
	mock.FetchCartFunc = prev
}
