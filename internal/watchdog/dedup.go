package watchdog

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/dashwatch/internal/domain"
)

// DedupStore persists the daily de-duplication record of a signal as opaque bytes.
type DedupStore interface {
	// LoadDedup returns nil, nil if nothing was saved yet.
	LoadDedup(ctx context.Context, signalID string) ([]byte, error)
	SaveDedup(ctx context.Context, signalID string, data []byte) error
}

// dailyDedup keeps today's record of notified ids in memory and in the store.
// A record from another day, or one that does not decode, is replaced by an
// empty record for today. A failed load is retried on the next poll; until it
// succeeds no key counts as unseen, so a stored record is never overwritten
// by a blank one.
type dailyDedup struct {
	store  DedupStore
	signal string
	loc    *time.Location
	log    *zap.Logger

	rec *domain.DedupRecord
}

// today returns today's record. It reports false when the stored record could
// not be read.
func (d *dailyDedup) today(ctx context.Context, now time.Time) (*domain.DedupRecord, bool) {
	date := now.In(d.loc).Format(domain.DateLayout)
	if d.rec != nil && d.rec.Date == date {
		return d.rec, true
	}
	if d.rec != nil {
		// Midnight passed while running.
		d.rec = &domain.DedupRecord{Date: date}
		return d.rec, true
	}

	raw, err := d.store.LoadDedup(ctx, d.signal)
	if err != nil {
		d.log.Warn("dedup_record_load_error", zap.String("signal", d.signal), zap.Error(err))
		return nil, false
	}
	d.rec = &domain.DedupRecord{Date: date}
	if raw == nil {
		return d.rec, true
	}
	var stored domain.DedupRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		d.log.Warn("dedup_record_reset", zap.String("signal", d.signal), zap.Error(err))
		return d.rec, true
	}
	if stored.Date != date {
		d.log.Info("dedup_record_rollover", zap.String("signal", d.signal), zap.String("stored_date", stored.Date))
		return d.rec, true
	}
	d.rec = &stored
	return d.rec, true
}

func (d *dailyDedup) unseen(ctx context.Context, now time.Time, keys []string) []string {
	rec, ok := d.today(ctx, now)
	if !ok {
		return nil
	}
	var out []string
	for _, k := range keys {
		if !rec.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (d *dailyDedup) mark(ctx context.Context, now time.Time, keys []string) {
	if len(keys) == 0 {
		return
	}
	rec, ok := d.today(ctx, now)
	if !ok {
		return
	}
	changed := false
	for _, k := range keys {
		if !rec.Has(k) {
			rec.NotifiedIDs = append(rec.NotifiedIDs, k)
			changed = true
		}
	}
	if !changed {
		return
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		d.log.Warn("dedup_record_encode_error", zap.String("signal", d.signal), zap.Error(err))
		return
	}
	if err := d.store.SaveDedup(ctx, d.signal, raw); err != nil {
		d.log.Warn("dedup_record_save_error", zap.String("signal", d.signal), zap.Error(err))
	}
}
