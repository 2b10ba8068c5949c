package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)

	c.BetPlaced("hard")
	c.BetPlaced("hard")
	c.Payout("hard", 270)
	c.Payout("hard", 0)
	c.Fee("soft", 120)
	c.OpError("place_bet", "conflict")

	if got := testutil.ToFloat64(c.BetsPlaced.WithLabelValues("hard")); got != 2 {
		t.Errorf("Expected 2 bets placed, got %v", got)
	}
	if got := testutil.ToFloat64(c.PayoutVolume.WithLabelValues("hard")); got != 270 {
		t.Errorf("Expected payout volume 270, got %v", got)
	}
	if got := testutil.ToFloat64(c.PlatformFee.WithLabelValues("soft")); got != 120 {
		t.Errorf("Expected fee 120, got %v", got)
	}
	if got := testutil.ToFloat64(c.OperationErrors.WithLabelValues("place_bet", "conflict")); got != 1 {
		t.Errorf("Expected 1 error, got %v", got)
	}
}

func TestNilCollectorsAreNoop(t *testing.T) {
	var c *Collectors
	c.BetPlaced("hard")
	c.LedgerEntry("refund", "hard")
	c.Settlement("paid")
	c.OpError("x", "y")
}

func TestHealthz(t *testing.T) {
	healthy := NewMux(prometheus.NewRegistry(), func(context.Context) error { return nil })
	rec := httptest.NewRecorder()
	healthy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}

	sick := NewMux(prometheus.NewRegistry(), func(context.Context) error { return errors.New("pg down") })
	rec = httptest.NewRecorder()
	sick.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}
