package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/stream-wager-engine/internal/domain"
	"github.com/radieske/stream-wager-engine/internal/testsupport"
	"github.com/radieske/stream-wager-engine/pkg/contracts/events"
)

// fakeReader entrega as mensagens em ordem e bloqueia até ctx ser cancelado
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafkago.Message
	committed []kafkago.Message
	done      chan struct{}
}

func newFakeReader(msgs ...kafkago.Message) *fakeReader {
	return &fakeReader{msgs: msgs, done: make(chan struct{})}
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	f.mu.Lock()
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	if len(f.msgs) == 0 {
		select {
		case <-f.done:
		default:
			close(f.done)
		}
	}
	return nil
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafkago.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func commandMsg(t *testing.T, offset int64, cmd events.RoundCommand) kafkago.Message {
	t.Helper()
	b, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	return kafkago.Message{Key: []byte(cmd.RoundID), Value: b, Offset: offset}
}

// runWorker processa todas as mensagens do reader e encerra o loop
func runWorker(t *testing.T, e *testsupport.Engine, r *fakeReader, dlq *fakeWriter) {
	t.Helper()
	w := NewWorker(r, dlq, NewHandler(e.Rounds, e.Settlement), zap.NewNop(), e.Metrics)
	w.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for commits")
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestWorkerAppliesRoundCommands(t *testing.T) {
	e := testsupport.NewEngine(t)
	e.OpenWallet(t, "alice", 1000)
	e.OpenWallet(t, "bob", 1000)
	r, opts := e.NewRound(t, "X", "Y")
	e.Place(t, "alice", opts[0].ID, 100, domain.CurrencyHard)
	e.Place(t, "bob", opts[1].ID, 300, domain.CurrencyHard)

	reader := newFakeReader(
		commandMsg(t, 1, events.RoundCommand{CommandID: "c1", Type: events.CmdLockChannel, RoundID: r.ID, Currency: "hard"}),
		commandMsg(t, 2, events.RoundCommand{CommandID: "c2", Type: events.CmdLockOption, RoundID: r.ID, OptionID: opts[0].ID}),
		commandMsg(t, 3, events.RoundCommand{CommandID: "c3", Type: events.CmdDeclareWinner, RoundID: r.ID, OptionID: opts[0].ID}),
		// reentrega do mesmo comando
		commandMsg(t, 4, events.RoundCommand{CommandID: "c3", Type: events.CmdDeclareWinner, RoundID: r.ID, OptionID: opts[0].ID}),
	)
	dlq := &fakeWriter{}
	runWorker(t, e, reader, dlq)

	if len(reader.committed) != 4 {
		t.Fatalf("Expected 4 commits, got %d", len(reader.committed))
	}
	if len(dlq.msgs) != 0 {
		t.Errorf("Expected empty DLQ, got %d messages", len(dlq.msgs))
	}

	// pool perdedor 300, taxa 45, pot 255 -> alice recebe 355
	if got := e.Balance(t, "alice", domain.CurrencyHard); got != 900+355 {
		t.Errorf("Expected alice 1255, got %d", got)
	}
	if n := e.CountTx(t, "alice", domain.TxBetWon); n != 1 {
		t.Errorf("Expected exactly one bet_won entry, got %d", n)
	}
	if got := testutil.ToFloat64(e.Metrics.Commands.WithLabelValues("declare_winner", "duplicate")); got != 1 {
		t.Errorf("Expected 1 duplicate declare, got %v", got)
	}
	if got := testutil.ToFloat64(e.Metrics.Commands.WithLabelValues("declare_winner", "applied")); got != 1 {
		t.Errorf("Expected 1 applied declare, got %v", got)
	}
	e.AssertReplay(t, "alice", "bob")
}

func TestWorkerDeadLettersRejectedCommands(t *testing.T) {
	e := testsupport.NewEngine(t)
	r, opts := e.NewRound(t, "X", "Y")

	reader := newFakeReader(
		kafkago.Message{Value: []byte("{not json"), Offset: 1},
		commandMsg(t, 2, events.RoundCommand{CommandID: "c1", Type: "explode", RoundID: r.ID}),
		commandMsg(t, 3, events.RoundCommand{CommandID: "c2", Type: events.CmdDeclareWinner, RoundID: r.ID, OptionID: opts[0].ID}),
		commandMsg(t, 4, events.RoundCommand{CommandID: "c3", Type: events.CmdLockOption, OptionID: "missing"}),
		commandMsg(t, 5, events.RoundCommand{CommandID: "c4", Type: events.CmdCancelRound, RoundID: r.ID}),
	)
	dlq := &fakeWriter{}
	runWorker(t, e, reader, dlq)

	if len(reader.committed) != 5 {
		t.Fatalf("Expected 5 commits, got %d", len(reader.committed))
	}
	// JSON inválido, tipo desconhecido, opção não travada, opção inexistente
	if len(dlq.msgs) != 4 {
		t.Fatalf("Expected 4 DLQ messages, got %d", len(dlq.msgs))
	}
	for i, m := range dlq.msgs {
		if len(m.Headers) != 1 || m.Headers[0].Key != "error" || len(m.Headers[0].Value) == 0 {
			t.Errorf("DLQ message %d missing error header: %+v", i, m.Headers)
		}
	}
	if got := testutil.ToFloat64(e.Metrics.Commands.WithLabelValues("cancel_round", "applied")); got != 1 {
		t.Errorf("Expected cancel_round applied, got %v", got)
	}
	if o := e.Option(t, opts[0].ID); o.Status != domain.OptionCancelled {
		t.Errorf("Expected option cancelled, got %s", o.Status)
	}
}

type flakyRounds struct {
	Rounds
	fails int
	calls int
}

func (f *flakyRounds) LockChannel(ctx context.Context, roundID string, c domain.Currency) (*domain.Round, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, errors.New("connection reset")
	}
	return f.Rounds.LockChannel(ctx, roundID, c)
}

func TestWorkerRetriesTransientErrors(t *testing.T) {
	tests := []struct {
		name      string
		fails     int
		wantCalls int
		wantDLQ   int
	}{
		{"recovers", 2, 3, 0},
		{"exhausts retries", 10, 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testsupport.NewEngine(t)
			r, _ := e.NewRound(t, "X")
			flaky := &flakyRounds{Rounds: e.Rounds, fails: tt.fails}

			reader := newFakeReader(commandMsg(t, 1, events.RoundCommand{
				CommandID: "c1", Type: events.CmdLockChannel, RoundID: r.ID, Currency: "soft",
			}))
			dlq := &fakeWriter{}
			w := NewWorker(reader, dlq, NewHandler(flaky, e.Settlement), zap.NewNop(), e.Metrics)
			w.backoff = time.Millisecond
			w.process(context.Background(), reader.msgs[0])

			if flaky.calls != tt.wantCalls {
				t.Errorf("Expected %d calls, got %d", tt.wantCalls, flaky.calls)
			}
			if len(dlq.msgs) != tt.wantDLQ {
				t.Errorf("Expected %d DLQ messages, got %d", tt.wantDLQ, len(dlq.msgs))
			}
		})
	}
}

func TestPermanent(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{fmt.Errorf("%w: x", domain.ErrNotFound), true},
		{fmt.Errorf("%w: x", domain.ErrInvalidState), true},
		{fmt.Errorf("%w: x", domain.ErrInvalidInput), true},
		{errors.New("timeout"), false},
	}
	for _, tt := range tests {
		if got := Permanent(tt.err); got != tt.want {
			t.Errorf("Permanent(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
