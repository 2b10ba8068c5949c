package http_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/radieske/stream-wager-engine/internal/domain"
	whttp "github.com/radieske/stream-wager-engine/internal/http"
	"github.com/radieske/stream-wager-engine/internal/testsupport"
)

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	e := testsupport.NewEngine(t)
	api := whttp.NewServer(zap.NewNop(), e.Ledger, e.Betting, e.Rounds, e.Settlement,
		map[domain.Currency]int64{domain.CurrencyHard: 1000})
	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type idResponse struct {
	ID string `json:"id"`
}

func TestBettingFlowOverHTTP(t *testing.T) {
	srv := newAPI(t)

	for _, u := range []string{"alice", "bob"} {
		if code := call(t, srv, http.MethodPost, "/wallets", map[string]string{"userId": u}, nil); code != http.StatusCreated {
			t.Fatalf("Expected 201 opening wallet, got %d", code)
		}
	}
	if code := call(t, srv, http.MethodPost, "/wallets", map[string]string{"userId": "alice"}, nil); code != http.StatusConflict {
		t.Errorf("Expected 409 reopening wallet, got %d", code)
	}

	var stream, round, red, blue idResponse
	call(t, srv, http.MethodPost, "/streams", map[string]string{"name": "finals"}, &stream)
	call(t, srv, http.MethodPost, "/streams/"+stream.ID+"/rounds", map[string]string{"name": "map 1"}, &round)
	call(t, srv, http.MethodPost, "/rounds/"+round.ID+"/options", map[string]string{"name": "red"}, &red)
	call(t, srv, http.MethodPost, "/rounds/"+round.ID+"/options", map[string]string{"name": "blue"}, &blue)

	place := func(user, option string, amount int64) int {
		return call(t, srv, http.MethodPost, "/bets", map[string]any{
			"userId": user, "optionId": option, "amount": amount, "currency": "hard",
		}, nil)
	}
	if code := place("alice", red.ID, 100); code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", code)
	}
	if code := place("alice", blue.ID, 100); code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate bet, got %d", code)
	}
	if code := place("bob", blue.ID, 5000); code != http.StatusPaymentRequired {
		t.Errorf("Expected 402 for overdraft, got %d", code)
	}
	if code := place("bob", blue.ID, 0); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for zero amount, got %d", code)
	}
	if code := place("bob", blue.ID, 300); code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", code)
	}

	if code := call(t, srv, http.MethodPost, "/options/"+red.ID+"/winner", nil, nil); code != http.StatusConflict {
		t.Errorf("Expected 409 declaring an active option, got %d", code)
	}
	if code := call(t, srv, http.MethodPost, "/options/"+red.ID+"/lock", nil, nil); code != http.StatusOK {
		t.Fatalf("Expected 200 locking option, got %d", code)
	}
	if code := call(t, srv, http.MethodPost, "/options/"+red.ID+"/winner", nil, nil); code != http.StatusOK {
		t.Fatalf("Expected 200 declaring winner, got %d", code)
	}

	var w domain.Wallet
	if code := call(t, srv, http.MethodGet, "/wallets/alice", nil, &w); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	// fee = floor(300×0.15) = 45; pot 255 vai todo para alice
	if got := w.Balance(domain.CurrencyHard); got != 900+355 {
		t.Errorf("Expected alice 1255, got %d", got)
	}

	var bets []domain.Bet
	call(t, srv, http.MethodGet, "/users/bob/bets?roundId="+round.ID, nil, &bets)
	if len(bets) != 1 || bets[0].Status != domain.BetLost {
		t.Errorf("Expected one lost bet for bob, got %+v", bets)
	}

	var rec struct {
		Consistent bool `json:"consistent"`
	}
	call(t, srv, http.MethodGet, "/wallets/bob/reconcile", nil, &rec)
	if !rec.Consistent {
		t.Error("Expected consistent ledger for bob")
	}
}

func TestCancelBetOverHTTP(t *testing.T) {
	srv := newAPI(t)
	call(t, srv, http.MethodPost, "/wallets", map[string]string{"userId": "alice"}, nil)

	var stream, round, red idResponse
	call(t, srv, http.MethodPost, "/streams", map[string]string{"name": "finals"}, &stream)
	call(t, srv, http.MethodPost, "/streams/"+stream.ID+"/rounds", map[string]string{"name": "map 1"}, &round)
	call(t, srv, http.MethodPost, "/rounds/"+round.ID+"/options", map[string]string{"name": "red"}, &red)

	var placed struct {
		Bet domain.Bet `json:"bet"`
	}
	call(t, srv, http.MethodPost, "/bets", map[string]any{
		"userId": "alice", "optionId": red.ID, "amount": 250, "currency": "hard",
	}, &placed)

	path := fmt.Sprintf("/bets/%s/cancel", placed.Bet.ID)
	if code := call(t, srv, http.MethodPost, path, map[string]string{"userId": "mallory"}, nil); code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", code)
	}
	var out struct {
		Wallet domain.Wallet `json:"wallet"`
	}
	if code := call(t, srv, http.MethodPost, path, map[string]string{"userId": "alice"}, &out); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if out.Wallet.Balance(domain.CurrencyHard) != 1000 {
		t.Errorf("Expected 1000 after cancel, got %d", out.Wallet.Balance(domain.CurrencyHard))
	}
	if code := call(t, srv, http.MethodGet, "/bets/missing", nil, nil); code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", code)
	}
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrInvalidState, http.StatusConflict},
		{domain.ErrConflict, http.StatusConflict},
		{domain.ErrInsufficientFunds, http.StatusPaymentRequired},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", domain.ErrNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := whttp.StatusOf(tc.err); got != tc.want {
			t.Errorf("StatusOf(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	e := testsupport.NewEngine(t)
	api := whttp.NewServer(zap.NewNop(), e.Ledger, e.Betting, e.Rounds, e.Settlement, nil).
		WithCORS([]string{"https://panel.example"})
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/bets", nil)
	req.Header.Set("Origin", "https://panel.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://panel.example" {
		t.Errorf("Expected allowed origin header, got %q", got)
	}
}
