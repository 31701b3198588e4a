package memory

import (
	"context"
	"fmt"
	"time"
)

const (
	// candidateLimit is how many records are requested from the store
	// before the time window is applied.
	candidateLimit = 100

	// MaxRetrieved caps the records returned by Retrieve.
	MaxRetrieved = 20
)

// Retriever fetches the records relevant to a topic for one owner.
type Retriever struct {
	store   Store
	ownerID string
	now     func() time.Time
}

// NewRetriever creates a Retriever reading from store on behalf of ownerID.
func NewRetriever(store Store, ownerID string) *Retriever {
	return &Retriever{store: store, ownerID: ownerID, now: time.Now}
}

// Retrieve returns up to MaxRetrieved records relevant to text, in store
// ranking order. When windowDays is positive, records whose timestamp
// metadata is older than the window are dropped; records with a missing
// or unparseable timestamp are kept.
func (r *Retriever) Retrieve(ctx context.Context, text string, category *Category, windowDays int) ([]Record, error) {
	candidates, err := r.store.Search(ctx, SearchRequest{
		Query:    text,
		OwnerID:  r.ownerID,
		Category: category,
		Limit:    candidateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve memories: %w", err)
	}

	var cutoff time.Time
	if windowDays > 0 {
		cutoff = r.now().UTC().AddDate(0, 0, -windowDays)
	}

	records := make([]Record, 0, min(len(candidates), MaxRetrieved))
	for _, rec := range candidates {
		if len(records) == MaxRetrieved {
			break
		}
		if !cutoff.IsZero() && olderThan(rec, cutoff) {
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

func olderThan(rec Record, cutoff time.Time) bool {
	raw, ok := rec.Metadata.String(MetaTimestamp)
	if !ok {
		return false
	}
	ts, err := parseTimestamp(raw)
	if err != nil {
		return false
	}
	return ts.Before(cutoff)
}
