package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eddiefleurent/options_strategist/internal/models"
)

// DefaultMaxRecords caps the journal when no explicit limit is configured.
const DefaultMaxRecords = 1000

// journalData is the persisted document.
type journalData struct {
	Records     []models.Recommendation `json:"records"`
	Statistics  *Statistics             `json:"statistics"`
	LastUpdated time.Time               `json:"last_updated"`
}

// journal holds the records shared by the in-memory and file-backed stores.
type journal struct {
	mu         sync.RWMutex
	data       *journalData
	now        func() time.Time
	maxRecords int
}

func newJournal(maxRecords int) journal {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	return journal{
		data:       &journalData{Records: []models.Recommendation{}, Statistics: newStatistics()},
		now:        time.Now,
		maxRecords: maxRecords,
	}
}

// appendWith stamps rec, builds the next document and commits it only if persist succeeds.
func (j *journal) appendWith(rec *models.Recommendation, persist func(*journalData) error) error {
	if rec == nil {
		return errors.New("recommendation is nil")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	stamped := *rec
	if stamped.ID == "" {
		stamped.ID = uuid.NewString()
	}
	if stamped.CreatedAt.IsZero() {
		stamped.CreatedAt = j.now().UTC()
	}
	for _, existing := range j.data.Records {
		if existing.ID == stamped.ID {
			return fmt.Errorf("recommendation %s already recorded", stamped.ID)
		}
	}

	records := make([]models.Recommendation, 0, len(j.data.Records)+1)
	records = append(records, j.data.Records...)
	records = append(records, stamped)
	if over := len(records) - j.maxRecords; over > 0 {
		records = records[over:]
	}

	stats := j.data.Statistics.clone()
	stats.record(&stamped)

	next := &journalData{
		Records:     records,
		Statistics:  stats,
		LastUpdated: stamped.CreatedAt,
	}
	if persist != nil {
		if err := persist(next); err != nil {
			return err
		}
	}

	j.data = next
	rec.ID = stamped.ID
	rec.CreatedAt = stamped.CreatedAt
	return nil
}

// Get returns a copy of the record with id.
func (j *journal) Get(id string) (*models.Recommendation, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	for i := range j.data.Records {
		if j.data.Records[i].ID == id {
			rec := j.data.Records[i]
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// History returns records newest first, optionally filtered by symbol.
func (j *journal) History(symbol string, limit int) []models.Recommendation {
	j.mu.RLock()
	defer j.mu.RUnlock()

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	out := []models.Recommendation{}
	for i := len(j.data.Records) - 1; i >= 0; i-- {
		rec := j.data.Records[i]
		if symbol != "" && rec.Symbol != symbol {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// GetStatistics returns a copy of the journal counters.
func (j *journal) GetStatistics() *Statistics {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.data.Statistics.clone()
}

// MemoryStorage keeps the journal in process memory.
type MemoryStorage struct {
	journal
}

// NewMemoryStorage creates an in-memory journal.
func NewMemoryStorage(maxRecords int) *MemoryStorage {
	return &MemoryStorage{journal: newJournal(maxRecords)}
}

// Append stores rec.
func (m *MemoryStorage) Append(rec *models.Recommendation) error {
	return m.appendWith(rec, nil)
}

// JSONStorage persists the journal to a single JSON file, rewritten
// atomically on every append.
type JSONStorage struct {
	journal
	filepath string
}

// NewJSONStorage opens or creates the journal at path.
func NewJSONStorage(path string, maxRecords int) (*JSONStorage, error) {
	s := &JSONStorage{
		journal:  newJournal(maxRecords),
		filepath: path,
	}

	// Load existing data if file exists
	if _, err := os.Stat(path); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("checking storage file: %w", err)
	}

	return s, nil
}

// Load replaces the in-memory journal with the file contents.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}

	var data journalData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decoding %s: %w", s.filepath, err)
	}
	if data.Records == nil {
		data.Records = []models.Recommendation{}
	}
	if data.Statistics == nil {
		data.Statistics = newStatistics()
		for i := range data.Records {
			data.Statistics.record(&data.Records[i])
		}
	}
	if data.Statistics.ByOutlook == nil {
		data.Statistics.ByOutlook = make(map[models.Outlook]int)
	}
	if data.Statistics.ByStrategy == nil {
		data.Statistics.ByStrategy = make(map[string]int)
	}

	s.data = &data
	return nil
}

// Append stores rec and rewrites the file.
func (s *JSONStorage) Append(rec *models.Recommendation) error {
	return s.appendWith(rec, s.write)
}

func (s *JSONStorage) write(data *journalData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding journal: %w", err)
	}

	if dir := filepath.Dir(s.filepath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating journal directory: %w", err)
		}
	}

	// Write to temp file first
	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0o600); err != nil {
		return fmt.Errorf("writing journal: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpFile, s.filepath); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("replacing journal: %w", err)
	}
	return nil
}
