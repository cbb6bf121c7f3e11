package reconcile

import (
	"context"
	"testing"
	"time"

	"hve/internal/domain"
	"hve/internal/market"
)

// history returns a small plausible daily-bar history for symbol whose
// maximum volume is 5_000_000 on 2024-03-08.
func history(symbol string) []domain.DailyBar {
	return []domain.DailyBar{
		bar(symbol, d(2023, 7, 3), 1_200_000),
		bar(symbol, d(2024, 3, 8), 5_000_000),
		bar(symbol, d(2025, 1, 15), 2_500_000),
	}
}

func newPass(t *testing.T, provider *fakeProvider) (*Pass, func() time.Time) {
	t.Helper()
	st := newEngineStore(t)
	p := &Pass{
		Provider:  provider,
		Store:     st,
		Engine:    NewEngine(provider, st, earliest, 1),
		Scheduler: NewScheduler(4, 0),
	}
	checkpoint := func() time.Time {
		cp, _, err := st.Checkpoint(context.Background())
		if err != nil {
			t.Fatalf("Checkpoint: %v", err)
		}
		return cp
	}
	return p, checkpoint
}

func TestPassBuildsRecordsAndAdvancesCheckpoint(t *testing.T) {
	provider := newFakeProvider()
	provider.universe = []market.Ticker{
		{Symbol: "AAA", Exchange: "XNYS"},
		{Symbol: "BBB", Exchange: "XNAS"},
	}
	provider.bars["AAA"] = history("AAA")
	provider.bars["BBB"] = history("BBB")

	p, checkpoint := newPass(t, provider)
	target := d(2025, 9, 19)

	res, err := p.Run(context.Background(), target, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Created != 2 || res.Failed != 0 {
		t.Fatalf("result = %+v, want 2 created, 0 failed", res)
	}
	if !res.CheckpointAdvanced {
		t.Error("clean pass must advance the checkpoint")
	}
	if got := checkpoint(); !got.Equal(target) {
		t.Errorf("checkpoint = %v, want %v", got, target)
	}
}

func TestPassLeavesCheckpointOnFailure(t *testing.T) {
	provider := newFakeProvider()
	provider.universe = []market.Ticker{
		{Symbol: "GOOD", Exchange: "XNYS"},
		{Symbol: "FLAKY", Exchange: "XNAS"},
	}
	provider.bars["GOOD"] = history("GOOD")
	provider.failures["FLAKY"] = 100

	p, checkpoint := newPass(t, provider)
	target := d(2025, 9, 19)

	res, err := p.Run(context.Background(), target, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Created != 1 || res.Failed != 1 {
		t.Fatalf("result = %+v, want 1 created, 1 failed", res)
	}
	if res.CheckpointAdvanced {
		t.Error("checkpoint must not advance while any symbol failed")
	}
	if got := checkpoint(); !got.IsZero() {
		t.Errorf("checkpoint = %v, want unset", got)
	}

	// GOOD's record survives the failed pass; the next clean pass only
	// needs to repair FLAKY.
	if _, ok, _ := p.Store.Get(context.Background(), "GOOD"); !ok {
		t.Error("successful symbol's record should persist across a failed pass")
	}

	provider.failures["FLAKY"] = 0
	provider.bars["FLAKY"] = history("FLAKY")

	res, err = p.Run(context.Background(), target, nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.Failed != 0 || !res.CheckpointAdvanced {
		t.Fatalf("second pass = %+v, want clean with checkpoint advanced", res)
	}
	if got := checkpoint(); !got.Equal(target) {
		t.Errorf("checkpoint = %v, want %v", got, target)
	}
}

func TestPassCollectsEvents(t *testing.T) {
	provider := newFakeProvider()
	provider.universe = []market.Ticker{{Symbol: "XYZ", Exchange: "XNYS"}}
	provider.bars["XYZ"] = history("XYZ")

	p, _ := newPass(t, provider)
	ctx := context.Background()

	if _, err := p.Run(ctx, d(2025, 9, 18), nil); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// A new bar beats the standing record on the next pass.
	provider.bars["XYZ"] = append(provider.bars["XYZ"], bar("XYZ", d(2025, 9, 19), 9_000_000))

	res, err := p.Run(ctx, d(2025, 9, 19), nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.Updated != 1 || len(res.Events) != 1 {
		t.Fatalf("result = %+v, want 1 updated with 1 event", res)
	}
	ev := res.Events[0]
	if ev.Symbol != "XYZ" || ev.Volume != 9_000_000 || !ev.Date.Equal(d(2025, 9, 19)) {
		t.Errorf("event = %+v", ev)
	}
	if ev.PrevVolume == 0 || ev.PrevDate.IsZero() {
		t.Errorf("event must carry the displaced record: %+v", ev)
	}
}

func TestPassSkipsKnownEmptySymbols(t *testing.T) {
	provider := newFakeProvider()
	provider.universe = []market.Ticker{
		{Symbol: "REAL", Exchange: "XNYS"},
		{Symbol: "HOLLOW", Exchange: "XNAS"},
	}
	provider.bars["REAL"] = history("REAL")

	p, _ := newPass(t, provider)
	p.CacheDir = t.TempDir()
	target := d(2025, 9, 19)

	res, err := p.Run(context.Background(), target, nil)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if res.Empty != 1 {
		t.Fatalf("result = %+v, want 1 empty", res)
	}

	res, err = p.Run(context.Background(), target, nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.Skipped != 1 {
		t.Errorf("second pass skipped %d, want 1", res.Skipped)
	}
	if provider.calls["HOLLOW"] != 1 {
		t.Errorf("HOLLOW fetched %d times, want 1", provider.calls["HOLLOW"])
	}
}

func TestNoDataCacheResetsOnNewTarget(t *testing.T) {
	dir := t.TempDir()

	cache, err := OpenNoDataCache(dir, d(2025, 9, 18))
	if err != nil {
		t.Fatalf("OpenNoDataCache: %v", err)
	}
	if err := cache.Mark([]string{"HOLLOW"}); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	cache.Close()

	// Same target: the miss persists across restarts.
	cache, err = OpenNoDataCache(dir, d(2025, 9, 18))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !cache.Skip("HOLLOW") {
		t.Error("miss should survive a reopen for the same target")
	}
	cache.Close()

	// New target: the symbol may have listed since, so re-fetch it.
	cache, err = OpenNoDataCache(dir, d(2025, 9, 19))
	if err != nil {
		t.Fatalf("reopen with new target: %v", err)
	}
	defer cache.Close()
	if cache.Skip("HOLLOW") {
		t.Error("a new target date must reset the cache")
	}
}

func TestStale(t *testing.T) {
	st := newEngineStore(t)
	ctx := context.Background()
	latest := d(2025, 9, 19)

	stale, err := Stale(ctx, st, latest)
	if err != nil || !stale {
		t.Fatalf("empty store: stale=%v err=%v, want stale", stale, err)
	}

	st.Upsert(ctx, domain.VolumeRecord{Symbol: "AAA", Date: d(2020, 1, 2), Volume: 100})
	stale, err = Stale(ctx, st, latest)
	if err != nil || !stale {
		t.Fatalf("no checkpoint: stale=%v err=%v, want stale", stale, err)
	}

	st.SetCheckpoint(ctx, d(2025, 9, 18))
	stale, err = Stale(ctx, st, latest)
	if err != nil || !stale {
		t.Fatalf("checkpoint behind: stale=%v err=%v, want stale", stale, err)
	}

	st.SetCheckpoint(ctx, latest)
	stale, err = Stale(ctx, st, latest)
	if err != nil || stale {
		t.Fatalf("checkpoint current: stale=%v err=%v, want fresh", stale, err)
	}
}
