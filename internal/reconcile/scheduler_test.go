package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"hve/internal/domain"
	"hve/internal/market"
)

func symbolList(n int) []string {
	syms := make([]string, n)
	for i := range syms {
		syms[i] = fmt.Sprintf("SYM%03d", i)
	}
	return syms
}

func TestSchedulerRunsEverySymbolExactlyOnce(t *testing.T) {
	syms := symbolList(50)

	var mu sync.Mutex
	calls := make(map[string]int)

	sched := NewScheduler(8, 0)
	outcomes, err := sched.Run(context.Background(), syms,
		func(ctx context.Context, symbol string) domain.Outcome {
			mu.Lock()
			calls[symbol]++
			mu.Unlock()
			return domain.Outcome{Symbol: symbol, Kind: domain.OutcomeUnchanged}
		}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(outcomes) != len(syms) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(syms))
	}
	for _, sym := range syms {
		if calls[sym] != 1 {
			t.Errorf("%s ran %d times, want 1", sym, calls[sym])
		}
	}
	for i, out := range outcomes {
		if out.Symbol != syms[i] {
			t.Fatalf("outcome %d is for %s, want %s", i, out.Symbol, syms[i])
		}
		if out.Kind != domain.OutcomeUnchanged {
			t.Errorf("%s: Kind = %v, want unchanged", out.Symbol, out.Kind)
		}
	}
}

func TestSchedulerIsolatesPerSymbolFailures(t *testing.T) {
	syms := []string{"AAA", "BBB", "CCC"}

	sched := NewScheduler(2, 0)
	outcomes, err := sched.Run(context.Background(), syms,
		func(ctx context.Context, symbol string) domain.Outcome {
			if symbol == "BBB" {
				return domain.Outcome{Symbol: symbol, Kind: domain.OutcomeFailed, Err: errors.New("timeout")}
			}
			return domain.Outcome{Symbol: symbol, Kind: domain.OutcomeUnchanged}
		}, nil)
	if err != nil {
		t.Fatalf("a per-symbol failure must not fail the run: %v", err)
	}

	kinds := make(map[string]domain.OutcomeKind)
	for _, out := range outcomes {
		kinds[out.Symbol] = out.Kind
	}
	if kinds["BBB"] != domain.OutcomeFailed {
		t.Errorf("BBB: Kind = %v, want failed", kinds["BBB"])
	}
	if kinds["AAA"] != domain.OutcomeUnchanged || kinds["CCC"] != domain.OutcomeUnchanged {
		t.Errorf("healthy symbols affected by BBB's failure: %v", kinds)
	}
}

func TestSchedulerAbortsOnAuthFailure(t *testing.T) {
	syms := symbolList(200)

	var calls sync.Map
	sched := NewScheduler(4, 0)
	outcomes, err := sched.Run(context.Background(), syms,
		func(ctx context.Context, symbol string) domain.Outcome {
			calls.Store(symbol, true)
			time.Sleep(time.Millisecond)
			if symbol == "SYM010" {
				return domain.Outcome{Symbol: symbol, Kind: domain.OutcomeFailed,
					Err: fmt.Errorf("fetching history: %w", market.ErrAuth)}
			}
			return domain.Outcome{Symbol: symbol, Kind: domain.OutcomeUnchanged}
		}, nil)
	if !errors.Is(err, market.ErrAuth) {
		t.Fatalf("Run err = %v, want ErrAuth", err)
	}

	ran := 0
	calls.Range(func(_, _ any) bool { ran++; return true })
	if ran == len(syms) {
		t.Error("auth failure did not stop the remaining work")
	}

	// Symbols never attempted must still report Failed so the pass cannot
	// advance its checkpoint.
	for _, out := range outcomes {
		if _, ok := calls.Load(out.Symbol); ok {
			continue
		}
		if out.Kind != domain.OutcomeFailed {
			t.Fatalf("%s never ran but Kind = %v, want failed", out.Symbol, out.Kind)
		}
	}
}

func TestSchedulerReportsProgress(t *testing.T) {
	syms := symbolList(20)

	var mu sync.Mutex
	var seen []int
	sched := NewScheduler(3, 0)
	_, err := sched.Run(context.Background(), syms,
		func(ctx context.Context, symbol string) domain.Outcome {
			return domain.Outcome{Symbol: symbol, Kind: domain.OutcomeUnchanged}
		},
		func(done, total int) {
			mu.Lock()
			seen = append(seen, done)
			mu.Unlock()
			if total != len(syms) {
				t.Errorf("total = %d, want %d", total, len(syms))
			}
		})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(seen) != len(syms) {
		t.Fatalf("progress fired %d times, want %d", len(seen), len(syms))
	}
	max := 0
	for _, n := range seen {
		if n > max {
			max = n
		}
	}
	if max != len(syms) {
		t.Errorf("final progress count = %d, want %d", max, len(syms))
	}
}

func TestSchedulerEmptyUniverse(t *testing.T) {
	sched := NewScheduler(4, 0)
	outcomes, err := sched.Run(context.Background(), nil,
		func(ctx context.Context, symbol string) domain.Outcome {
			t.Fatal("fn must not run for an empty universe")
			return domain.Outcome{}
		}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("got %d outcomes, want 0", len(outcomes))
	}
}
