package daily

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in memory.
type MemoryStore struct {
	mu   sync.Mutex
	data map[time.Time]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[time.Time]*Record{}}
}

// Add merges r into the record of its day.
func (s *MemoryStore) Add(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := Day(r.Date)
	rec := s.data[d]
	if rec == nil {
		rec = &Record{Date: d}
		s.data[d] = rec
	}
	rec.Add(r)
	return nil
}

// Query returns records between start and end inclusive, by date.
func (s *MemoryStore) Query(start, end time.Time) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start, end = Day(start), Day(end)
	var res []Record
	for d, r := range s.data {
		if d.Before(start) || d.After(end) {
			continue
		}
		res = append(res, *r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date.Before(res[j].Date) })
	return res, nil
}
