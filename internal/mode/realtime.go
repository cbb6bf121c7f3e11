package mode

import (
	"context"
	"errors"
	"sort"
	"time"

	"hve/internal/domain"
	"hve/internal/market"
)

// scanSnapshot compares the full-market current-day snapshot against every
// stored record and upserts new all-time highs dated today (Central). One
// batched provider call covers the whole universe.
func (s *Selector) scanSnapshot(ctx context.Context) ([]domain.VolumeEvent, error) {
	records, err := s.Store.EventsSince(ctx, time.Time{})
	if err != nil {
		return nil, err
	}

	snaps, err := s.Provider.CurrentVolumes(ctx)
	if err != nil {
		return nil, err
	}

	today := domain.DateOf(s.now(), market.Central())
	var events []domain.VolumeEvent
	for _, rec := range records {
		snap, ok := snaps[rec.Symbol]
		if !ok || snap.Volume <= rec.Volume {
			continue
		}
		changed, err := s.Store.Upsert(ctx, domain.VolumeRecord{
			Symbol: rec.Symbol,
			Date:   today,
			Volume: snap.Volume,
		})
		if err != nil {
			return nil, err
		}
		if !changed {
			continue
		}
		events = append(events, domain.VolumeEvent{
			Symbol:     rec.Symbol,
			PrevDate:   rec.Date,
			PrevVolume: rec.Volume,
			Date:       today,
			Volume:     snap.Volume,
			ChangePct:  snap.ChangePct,
		})
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Symbol < events[j].Symbol })
	return events, nil
}

func isAuth(err error) bool {
	return errors.Is(err, market.ErrAuth)
}
