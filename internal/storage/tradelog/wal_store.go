// Package tradelog journals trade outcomes in a WAL so the local history
// survives restarts and backend outages.
package tradelog

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/aitradehq/tradeflow/internal/domain"
)

const (
	DefaultDir   = "./state/tradelog"
	segmentLimit = 100
	maxSegments  = 10

	outcomeKeyPrefix = "trade_outcome_"
)

// Record is one journaled outcome together with its WAL position.
type Record struct {
	Index   uint64              `json:"index"`
	Outcome domain.TradeOutcome `json:"outcome"`
}

// WALStore persists trade outcomes in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed trade journal.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "trade_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init trade WAL")
	}

	return &WALStore{wal: wal}, nil
}

// SaveOutcome appends the outcome to the journal. Failed attempts are
// journaled too, with the fault reason carried in the outcome.
func (s *WALStore) SaveOutcome(outcome domain.TradeOutcome) error {
	if s == nil || s.wal == nil {
		return errors.New("trade journal is not initialized")
	}
	if outcome.AttemptID == "" {
		return fmt.Errorf("trade outcome attempt id is required")
	}

	payload, err := json.Marshal(outcome)
	if err != nil {
		return errors.Wrap(err, "marshal trade outcome")
	}

	key := outcomeKeyPrefix + outcome.AttemptID

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// OutcomesAfter returns all outcomes journaled after the provided WAL index.
func (s *WALStore) OutcomesAfter(index uint64) ([]Record, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("trade journal is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]Record, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(key, outcomeKeyPrefix) {
			continue
		}

		var outcome domain.TradeOutcome
		if err := json.Unmarshal(payload, &outcome); err != nil {
			return nil, errors.Wrap(err, "decode trade outcome")
		}
		records = append(records, Record{Index: idx, Outcome: outcome})
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("trade journal is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
