package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/radieske/stream-wager-engine/internal/betting"
	"github.com/radieske/stream-wager-engine/internal/betting/dto"
	"github.com/radieske/stream-wager-engine/internal/domain"
	"github.com/radieske/stream-wager-engine/internal/ledger"
	"github.com/radieske/stream-wager-engine/internal/rounds"
	"github.com/radieske/stream-wager-engine/internal/settlement"
)

// Wallets define as operações de carteira usadas pelo handler HTTP
type Wallets interface {
	OpenWallet(ctx context.Context, userID string, grants map[domain.Currency]int64) (*domain.Wallet, error)
	Wallet(ctx context.Context, userID string) (*domain.Wallet, error)
	History(ctx context.Context, userID string, c domain.Currency, limit int) ([]domain.Transaction, error)
	Reconcile(ctx context.Context, userID string) (*ledger.Reconciliation, error)
}

type Bets interface {
	PlaceBet(ctx context.Context, req dto.PlaceBetRequest) (*betting.Outcome, error)
	CancelBet(ctx context.Context, req dto.CancelBetRequest) (*betting.Outcome, error)
	EditBet(ctx context.Context, req dto.EditBetRequest) (*betting.EditOutcome, error)
	GetBet(ctx context.Context, betID string) (*domain.Bet, error)
	ListUserBets(ctx context.Context, userID, roundID string) ([]domain.Bet, error)
}

type Rounds interface {
	CreateStream(ctx context.Context, name string) (*domain.Stream, error)
	CreateRound(ctx context.Context, streamID, name string) (*domain.Round, error)
	CreateOption(ctx context.Context, roundID, name string) (*domain.Option, error)
	GetRound(ctx context.Context, roundID string) (*domain.Round, error)
	GetOption(ctx context.Context, optionID string) (*domain.Option, error)
	ListOptions(ctx context.Context, roundID string) ([]domain.Option, error)
	LockOption(ctx context.Context, optionID string) (*domain.Option, error)
	LockChannel(ctx context.Context, roundID string, c domain.Currency) (*domain.Round, error)
	OpenChannel(ctx context.Context, roundID string, c domain.Currency) (*domain.Round, error)
	CancelRoundAndRefund(ctx context.Context, roundID string) (*rounds.RoundRefund, error)
}

type Settlements interface {
	DeclareWinner(ctx context.Context, optionID string) (*settlement.Result, error)
}

// Server expõe o motor de apostas via JSON; autenticação é feita antes (gateway)
type Server struct {
	log     *zap.Logger
	wallets Wallets
	bets    Bets
	rounds  Rounds
	settle  Settlements
	grants  map[domain.Currency]int64
	origins []string
}

// NewServer instancia o servidor HTTP; grants são os saldos iniciais de cada carteira nova
func NewServer(log *zap.Logger, w Wallets, b Bets, r Rounds, s Settlements, grants map[domain.Currency]int64) *Server {
	return &Server{log: log, wallets: w, bets: b, rounds: r, settle: s, grants: grants}
}

// Router retorna o roteador HTTP com as rotas da API
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Post("/wallets", s.openWallet)
	r.Get("/wallets/{userId}", s.getWallet)
	r.Get("/wallets/{userId}/transactions", s.history) // ?currency=&limit=
	r.Get("/wallets/{userId}/reconcile", s.reconcile)

	r.Post("/bets", s.placeBet)
	r.Get("/bets/{betId}", s.getBet)
	r.Post("/bets/{betId}/cancel", s.cancelBet)
	r.Post("/bets/{betId}/edit", s.editBet)
	r.Get("/users/{userId}/bets", s.userBets) // ?roundId=

	r.Post("/streams", s.createStream)
	r.Post("/streams/{streamId}/rounds", s.createRound)
	r.Route("/rounds/{roundId}", func(r chi.Router) {
		r.Get("/", s.getRound)
		r.Get("/options", s.listOptions)
		r.Post("/options", s.createOption)
		r.Post("/channels/{currency}/lock", s.lockChannel)
		r.Post("/channels/{currency}/open", s.openChannel)
		r.Post("/cancel", s.cancelRound)
	})

	r.Get("/options/{optionId}", s.getOption)
	r.Post("/options/{optionId}/lock", s.lockOption)
	r.Post("/options/{optionId}/winner", s.declareWinner)
	return r
}

// WithCORS habilita CORS para as origens informadas (painel web)
func (s *Server) WithCORS(origins []string) *Server {
	s.origins = origins
	return s
}

type openWalletRequest struct {
	UserID string `json:"userId"`
}

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) openWallet(w http.ResponseWriter, r *http.Request) {
	var req openWalletRequest
	if !decode(w, r, &req) {
		return
	}
	wallet, err := s.wallets.OpenWallet(r.Context(), req.UserID, s.grants)
	s.respond(w, http.StatusCreated, wallet, err)
}

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.wallets.Wallet(r.Context(), chi.URLParam(r, "userId"))
	s.respond(w, http.StatusOK, wallet, err)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	c := domain.Currency(r.URL.Query().Get("currency"))
	txs, err := s.wallets.History(r.Context(), chi.URLParam(r, "userId"), c, limit)
	s.respond(w, http.StatusOK, txs, err)
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.wallets.Reconcile(r.Context(), chi.URLParam(r, "userId"))
	s.respond(w, http.StatusOK, rec, err)
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := s.bets.PlaceBet(r.Context(), req)
	s.respond(w, http.StatusCreated, out, err)
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	b, err := s.bets.GetBet(r.Context(), chi.URLParam(r, "betId"))
	s.respond(w, http.StatusOK, b, err)
}

func (s *Server) cancelBet(w http.ResponseWriter, r *http.Request) {
	var req dto.CancelBetRequest
	if !decode(w, r, &req) {
		return
	}
	req.BetID = chi.URLParam(r, "betId")
	out, err := s.bets.CancelBet(r.Context(), req)
	s.respond(w, http.StatusOK, out, err)
}

func (s *Server) editBet(w http.ResponseWriter, r *http.Request) {
	var req dto.EditBetRequest
	if !decode(w, r, &req) {
		return
	}
	req.BetID = chi.URLParam(r, "betId")
	out, err := s.bets.EditBet(r.Context(), req)
	s.respond(w, http.StatusOK, out, err)
}

func (s *Server) userBets(w http.ResponseWriter, r *http.Request) {
	bets, err := s.bets.ListUserBets(r.Context(), chi.URLParam(r, "userId"), r.URL.Query().Get("roundId"))
	s.respond(w, http.StatusOK, bets, err)
}

func (s *Server) createStream(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	st, err := s.rounds.CreateStream(r.Context(), req.Name)
	s.respond(w, http.StatusCreated, st, err)
}

func (s *Server) createRound(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	round, err := s.rounds.CreateRound(r.Context(), chi.URLParam(r, "streamId"), req.Name)
	s.respond(w, http.StatusCreated, round, err)
}

func (s *Server) getRound(w http.ResponseWriter, r *http.Request) {
	round, err := s.rounds.GetRound(r.Context(), chi.URLParam(r, "roundId"))
	s.respond(w, http.StatusOK, round, err)
}

func (s *Server) listOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := s.rounds.ListOptions(r.Context(), chi.URLParam(r, "roundId"))
	s.respond(w, http.StatusOK, opts, err)
}

func (s *Server) createOption(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := s.rounds.CreateOption(r.Context(), chi.URLParam(r, "roundId"), req.Name)
	s.respond(w, http.StatusCreated, o, err)
}

func (s *Server) lockChannel(w http.ResponseWriter, r *http.Request) {
	round, err := s.rounds.LockChannel(r.Context(), chi.URLParam(r, "roundId"), domain.Currency(chi.URLParam(r, "currency")))
	s.respond(w, http.StatusOK, round, err)
}

func (s *Server) openChannel(w http.ResponseWriter, r *http.Request) {
	round, err := s.rounds.OpenChannel(r.Context(), chi.URLParam(r, "roundId"), domain.Currency(chi.URLParam(r, "currency")))
	s.respond(w, http.StatusOK, round, err)
}

func (s *Server) cancelRound(w http.ResponseWriter, r *http.Request) {
	out, err := s.rounds.CancelRoundAndRefund(r.Context(), chi.URLParam(r, "roundId"))
	s.respond(w, http.StatusOK, out, err)
}

func (s *Server) getOption(w http.ResponseWriter, r *http.Request) {
	o, err := s.rounds.GetOption(r.Context(), chi.URLParam(r, "optionId"))
	s.respond(w, http.StatusOK, o, err)
}

func (s *Server) lockOption(w http.ResponseWriter, r *http.Request) {
	o, err := s.rounds.LockOption(r.Context(), chi.URLParam(r, "optionId"))
	s.respond(w, http.StatusOK, o, err)
}

func (s *Server) declareWinner(w http.ResponseWriter, r *http.Request) {
	out, err := s.settle.DeclareWinner(r.Context(), chi.URLParam(r, "optionId"))
	s.respond(w, http.StatusOK, out, err)
}

// decode lê o corpo JSON; responde 400 e devolve false se inválido
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, status int, v any, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, status, v)
}

// StatusOf mapeia o tipo do erro de domínio para o status HTTP
func StatusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Kind: domain.KindOf(err)})
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
