package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/iter"
	"github.com/polygon-io/client-go/rest/models"
	"golang.org/x/time/rate"

	"hve/internal/domain"
)

// Compile-time interface check.
var _ Provider = (*PolygonProvider)(nil)

// Exchanges tracked by the monitor, as Polygon MIC codes.
var trackedExchanges = []string{"XNYS", "XNAS"}

// PolygonProvider implements Provider on top of the Polygon.io REST API.
type PolygonProvider struct {
	client  *polygon.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewPolygonProvider creates a provider using the given API key, pacing all
// requests to ratePerMin.
func NewPolygonProvider(apiKey string, ratePerMin int) *PolygonProvider {
	if ratePerMin <= 0 {
		ratePerMin = 600
	}
	return &PolygonProvider{
		client:  polygon.NewWithClient(apiKey, &http.Client{Timeout: 30 * time.Second}),
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerMin)/60.0), ratePerMin/10+1),
		log:     slog.Default().With("component", "polygon"),
	}
}

// Universe returns the current active common stocks on NYSE and NASDAQ,
// deduplicated and sorted. The ticker reference endpoint is paged to
// exhaustion per exchange.
func (p *PolygonProvider) Universe(ctx context.Context) ([]Ticker, error) {
	seen := make(map[string]Ticker)

	for _, mic := range trackedExchanges {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		csType := "CS"
		assetClass := models.AssetStocks
		active := true
		limit := 1000
		order := models.Asc
		sortCol := models.TickerSymbol
		exchange := mic

		params := &models.ListTickersParams{
			Type:     &csType,
			Market:   &assetClass,
			Exchange: &exchange,
			Active:   &active,
			Limit:    &limit,
			Order:    &order,
			Sort:     &sortCol,
		}

		count := 0
		it := p.client.ListTickers(ctx, params)
		for it.Next() {
			t := it.Item()
			if _, dup := seen[t.Ticker]; !dup {
				seen[t.Ticker] = Ticker{Symbol: t.Ticker, Exchange: mic}
			}
			count++
		}
		if err := it.Err(); err != nil {
			return nil, classify(fmt.Errorf("listing %s tickers: %w", mic, err))
		}
		p.log.Info("fetched exchange universe", "exchange", mic, "tickers", count)
	}

	if len(seen) == 0 {
		return nil, fmt.Errorf("empty symbol universe")
	}

	tickers := make([]Ticker, 0, len(seen))
	for _, t := range seen {
		tickers = append(tickers, t)
	}
	sort.Slice(tickers, func(i, j int) bool { return tickers[i].Symbol < tickers[j].Symbol })
	return tickers, nil
}

// History returns daily bars for symbol within [from, to]. The Polygon aggs
// endpoint pages transparently behind the iterator until exhaustion, which
// is what bounds a full-history scan.
func (p *PolygonProvider) History(ctx context.Context, symbol string, from, to time.Time) BarIter {
	// One token per scan; the iterator's internal page fetches ride on it.
	if err := p.limiter.Wait(ctx); err != nil {
		return &errIter{err: err}
	}

	adjusted := true
	order := models.Asc
	limit := 50000

	params := &models.ListAggsParams{
		Ticker:     symbol,
		Multiplier: 1,
		Timespan:   models.Day,
		From:       models.Millis(from),
		// The aggs upper bound is exclusive; push it past the last session.
		To: models.Millis(to.AddDate(0, 0, 1)),
	}
	params.Adjusted = &adjusted
	params.Order = &order
	params.Limit = &limit

	return &aggIter{symbol: symbol, it: p.client.ListAggs(ctx, params)}
}

// aggIter adapts a Polygon aggregate iterator to BarIter, mapping bar
// timestamps to exchange-local calendar dates.
type aggIter struct {
	symbol string
	it     *iter.Iter[models.Agg]
	cur    domain.DailyBar
}

func (a *aggIter) Next() bool {
	if !a.it.Next() {
		return false
	}
	agg := a.it.Item()
	a.cur = domain.DailyBar{
		Symbol: a.symbol,
		Date:   domain.DateOf(time.Time(agg.Timestamp), Eastern()),
		Open:   agg.Open,
		High:   agg.High,
		Low:    agg.Low,
		Close:  agg.Close,
		Volume: int64(agg.Volume),
	}
	return true
}

func (a *aggIter) Bar() domain.DailyBar { return a.cur }

func (a *aggIter) Err() error {
	if err := a.it.Err(); err != nil {
		return classify(fmt.Errorf("aggs for %s: %w", a.symbol, err))
	}
	return nil
}

// errIter is a BarIter that yields nothing but an error.
type errIter struct{ err error }

func (e *errIter) Next() bool           { return false }
func (e *errIter) Bar() domain.DailyBar { return domain.DailyBar{} }
func (e *errIter) Err() error           { return e.err }

// CurrentVolumes returns one batched snapshot of current-day volume and
// price change for the whole US stock market.
func (p *PolygonProvider) CurrentVolumes(ctx context.Context) (map[string]Snapshot, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := p.client.GetAllTickersSnapshot(ctx, &models.GetAllTickersSnapshotParams{
		Locale:     models.US,
		MarketType: models.Stocks,
	})
	if err != nil {
		return nil, classify(fmt.Errorf("market snapshot: %w", err))
	}

	out := make(map[string]Snapshot, len(resp.Tickers))
	for _, t := range resp.Tickers {
		out[t.Ticker] = Snapshot{
			Volume:    int64(t.Day.Volume),
			ChangePct: t.TodaysChangePerc,
		}
	}
	return out, nil
}

// Status reports whether the stock market trades today and the effective
// Central close time. Early closes come from the upcoming-holidays endpoint.
func (p *PolygonProvider) Status(ctx context.Context) (Status, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return Status{}, err
	}

	st, err := p.client.GetMarketStatus(ctx)
	if err != nil {
		return Status{}, classify(fmt.Errorf("market status: %w", err))
	}

	now := time.Now().In(Central())
	today := domain.DateOf(now, Central())

	// Regular close is 15:00 Central (16:00 Eastern).
	closeAt := time.Date(now.Year(), now.Month(), now.Day(), 15, 0, 0, 0, Central())

	open := st.Market == "open" || st.Market == "extended-hours"

	// The upcoming-holidays endpoint covers both full closures (today not a
	// session at all) and early closes (adjusted close time). A lookup
	// failure falls back to the status endpoint alone.
	closedHoliday, earlyClose := false, time.Time{}
	if holidays, err := p.holidays(ctx); err != nil {
		p.log.Warn("holiday lookup failed", "err", err)
	} else {
		for _, h := range holidays {
			if !domain.SameDate(time.Time(h.Date), today) {
				continue
			}
			if h.Status == "closed" {
				closedHoliday = true
			}
			if !time.Time(h.Close).IsZero() {
				earlyClose = time.Time(h.Close).In(Central())
			}
		}
	}

	if !open && isWeekday(now) && !closedHoliday {
		// Before the opening bell the status endpoint reports closed, but
		// today may still be a trading day.
		open = now.Before(closeAt)
	}
	if open && !earlyClose.IsZero() {
		closeAt = earlyClose
	}

	return Status{OpenToday: open, Close: closeAt}, nil
}

func (p *PolygonProvider) holidays(ctx context.Context) (models.GetMarketHolidaysResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := p.client.GetMarketHolidays(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return *resp, nil
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// classify maps provider errors onto the package taxonomy. Authentication
// failures become ErrAuth so callers can abort the whole pass.
func classify(err error) error {
	var er *models.ErrorResponse
	if errors.As(err, &er) {
		switch er.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrAuth, err)
		}
	}
	return err
}
