package api

import "sync"

const defaultStoreCapacity = 256

// ResultStore keeps the most recent softmax responses so clients can
// fetch them again by ID. The oldest entry is evicted when full.
type ResultStore struct {
	mu       sync.Mutex
	capacity int
	results  map[string]*SoftmaxResponse
	order    []string
}

func NewResultStore(capacity int) *ResultStore {
	if capacity <= 0 {
		capacity = defaultStoreCapacity
	}
	return &ResultStore{
		capacity: capacity,
		results:  make(map[string]*SoftmaxResponse),
	}
}

func (s *ResultStore) Put(resp *SoftmaxResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[resp.ID]; !ok {
		s.order = append(s.order, resp.ID)
	}
	s.results[resp.ID] = resp
	for len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.results, oldest)
	}
}

func (s *ResultStore) Get(id string) (*SoftmaxResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.results[id]
	return resp, ok
}

func (s *ResultStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[id]; !ok {
		return false
	}
	delete(s.results, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *ResultStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}
