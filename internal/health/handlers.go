// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/toko-storefront/internal/common"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the process-wide readiness flag. The server clears it when
// draining so load balancers stop routing new requests.
func SetReady(v bool) { ready.Store(v) }

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingStorage(ctx context.Context) error
	PingCommerce(ctx context.Context) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker         Checker
	StorageTimeout  time.Duration
	CommerceTimeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness. Storage failures make the instance unready; an
// unreachable commerce API only marks it degraded since carts still work.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	if h.Checker == nil {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	ctx := r.Context()
	storageStatus := probe(ctx, h.storageTimeout(), h.Checker.PingStorage)
	commerceStatus := probe(ctx, h.commerceTimeout(), h.Checker.PingCommerce)

	status := map[string]string{
		"status":   "ok",
		"storage":  storageStatus,
		"commerce": commerceStatus,
	}
	code := http.StatusOK
	switch {
	case storageStatus != "ok":
		status["status"] = "unavailable"
		code = http.StatusServiceUnavailable
	case commerceStatus != "ok":
		status["status"] = "degraded"
	}
	common.JSON(w, code, status)
}

func probe(ctx context.Context, timeout time.Duration, fn func(context.Context) error) string {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}

func (h Handler) storageTimeout() time.Duration {
	if h.StorageTimeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.StorageTimeout
}

func (h Handler) commerceTimeout() time.Duration {
	if h.CommerceTimeout <= 0 {
		return time.Second
	}
	return h.CommerceTimeout
}
