package memory

import (
	"context"
	"time"

	"github.com/easeaico/sql-memory-agent/internal/logging"
)

// Recorder appends categorized records for a single owner.
type Recorder struct {
	store   Store
	ownerID string
	now     func() time.Time
}

// NewRecorder creates a Recorder writing to store on behalf of ownerID.
func NewRecorder(store Store, ownerID string) *Recorder {
	return &Recorder{store: store, ownerID: ownerID, now: time.Now}
}

// Record persists text under category. A missing timestamp is stamped.
// Failures are logged and returned so callers can collect them as
// advisories; they are never fatal to the surrounding operation.
func (r *Recorder) Record(ctx context.Context, text string, category Category, meta Metadata) error {
	now := r.now().UTC()

	m := meta.Clone()
	if _, ok := m[MetaTimestamp]; !ok {
		m[MetaTimestamp] = now.Format(time.RFC3339Nano)
	}

	err := r.store.Add(ctx, Record{
		Text:      text,
		OwnerID:   r.ownerID,
		Category:  category,
		Metadata:  m,
		CreatedAt: now,
	})
	if err != nil {
		logging.Warn().
			Add(logging.Component("recorder")).
			Add(logging.Category(string(category))).
			Add(logging.ErrorField(err)).
			Msg("failed to record memory")
		return err
	}

	logging.Debug().
		Add(logging.Component("recorder")).
		Add(logging.Category(string(category))).
		Msg("memory recorded")
	return nil
}
