package storage

import (
	"github.com/eddiefleurent/options_strategist/internal/models"
)

// Interface defines the contract for recommendation journal persistence.
//
// Implementations must be safe for concurrent use - callers can assume all methods
// are goroutine-safe and can safely call these methods from multiple goroutines.
//
// The provided JSONStorage implementation uses sync.RWMutex to serialize access,
// ensuring all Interface methods are protected for concurrent readers and writers.
type Interface interface {
	// Append stores rec, assigning ID and CreatedAt when they are empty.
	Append(rec *models.Recommendation) error
	// Get returns the record with id or ErrNotFound.
	Get(id string) (*models.Recommendation, error)
	// History returns records newest first. An empty symbol matches all;
	// limit <= 0 means no limit.
	History(symbol string, limit int) []models.Recommendation
	// GetStatistics returns a snapshot of journal counters.
	GetStatistics() *Statistics
}

// Statistics summarises what the journal has recorded.
type Statistics struct {
	ByOutlook    map[models.Outlook]int `json:"by_outlook"`
	ByStrategy   map[string]int         `json:"by_strategy"`
	Total        int                    `json:"total"`
	EmptyResults int                    `json:"empty_results"`
}

func newStatistics() *Statistics {
	return &Statistics{
		ByOutlook:  make(map[models.Outlook]int),
		ByStrategy: make(map[string]int),
	}
}

func (s *Statistics) record(rec *models.Recommendation) {
	s.Total++
	s.ByOutlook[rec.Outlook]++
	if rec.IsEmpty() {
		s.EmptyResults++
		return
	}
	for _, st := range rec.Strategies {
		s.ByStrategy[st.Name]++
	}
}

func (s *Statistics) clone() *Statistics {
	out := newStatistics()
	out.Total = s.Total
	out.EmptyResults = s.EmptyResults
	for k, v := range s.ByOutlook {
		out.ByOutlook[k] = v
	}
	for k, v := range s.ByStrategy {
		out.ByStrategy[k] = v
	}
	return out
}

// NewStorage creates a journal. An empty path keeps records in memory only.
func NewStorage(path string, maxRecords int) (Interface, error) {
	if path == "" {
		return NewMemoryStorage(maxRecords), nil
	}
	return NewJSONStorage(path, maxRecords)
}

// Ensure implementations satisfy Interface
var (
	_ Interface = (*JSONStorage)(nil)
	_ Interface = (*MemoryStorage)(nil)
)
