package remediation

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/softcane/kube-remediator/internal/metrics"
)

// Store owns the action log together with the effectiveness aggregator. One
// lock covers both, so a snapshot never sees a log length that disagrees with
// the counters derived from it.
type Store struct {
	mu      sync.RWMutex
	actions []ActionRecord
	seq     uint64
	metrics *metrics.Aggregator
}

// NewStore creates an empty store. A nil aggregator gets a fresh one.
func NewStore(agg *metrics.Aggregator) *Store {
	if agg == nil {
		agg = metrics.NewAggregator(slog.Default())
	}
	return &Store{metrics: agg}
}

// Aggregator returns the store's aggregator, e.g. to expose its registry.
func (s *Store) Aggregator() *metrics.Aggregator {
	return s.metrics
}

// Record assigns an id to rec, appends it and counts it under metricLabel.
func (s *Store) Record(rec ActionRecord, metricLabel string) ActionRecord {
	return s.Commit([]ActionRecord{rec}, metricLabel, "")[0]
}

// Commit appends recs in order and counts them under metricLabel. A non-empty
// prevented is counted as a prevention in the same critical section, so a
// snapshot sees a call's actions and its prevention together or not at all.
// The returned records carry their ids and do not share maps with the log.
func (s *Store) Commit(recs []ActionRecord, metricLabel string, prevented IssueType) []ActionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ActionRecord, len(recs))
	for i, rec := range recs {
		s.seq++
		rec.ID = fmt.Sprintf("act-%d", s.seq)
		rec.Details = cloneDetails(rec.Details)
		s.actions = append(s.actions, rec)
		s.metrics.RecordAction(metricLabel, rec.Succeeded(), rec.Duration)
		out[i] = rec.clone()
	}
	if prevented != "" {
		s.metrics.RecordPrevention(string(prevented))
	}
	return out
}

// RecordResourceUtilization sets the utilisation gauge for a namespace.
func (s *Store) RecordResourceUtilization(resourceType, namespace string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.RecordResourceUtilization(resourceType, namespace, value)
}

// MarkFalsePositive flags the record matching id and actionType. The counter
// moves only the first time a record is flagged.
func (s *Store) MarkFalsePositive(id string, actionType ActionType) (ActionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.actions {
		rec := &s.actions[i]
		if rec.ID != id || rec.Type != actionType {
			continue
		}
		if !rec.FalsePositive {
			rec.FalsePositive = true
			s.metrics.RecordFalsePositive(string(rec.Type))
		}
		return rec.clone(), true
	}
	return ActionRecord{}, false
}

// Actions returns a copy of the log in insertion order.
func (s *Store) Actions() []ActionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ActionRecord, len(s.actions))
	for i := range s.actions {
		out[i] = s.actions[i].clone()
	}
	return out
}

// Len returns the number of logged actions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.actions)
}

// Snapshot computes effectiveness statistics under the store lock.
func (s *Store) Snapshot() metrics.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics.Snapshot()
}

func (r ActionRecord) clone() ActionRecord {
	r.Details = cloneDetails(r.Details)
	return r
}

// cloneDetails deep-copies executor details. Nested maps and slices are copied;
// other values are immutable scalars.
func cloneDetails(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneDetails(t)
	case map[string]string:
		c := make(map[string]string, len(t))
		for k, s := range t {
			c[k] = s
		}
		return c
	case []any:
		c := make([]any, len(t))
		for i, e := range t {
			c[i] = cloneValue(e)
		}
		return c
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
