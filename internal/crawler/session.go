package crawler

import (
	"net/url"
)

type queueItem struct {
	key   string
	ref   Reference
	path  string
	depth int
	index int
}

// Session holds the mutable state of one run. It is created per run and
// touched only by the engine's loop, so it carries no lock.
type Session struct {
	ID       string
	Target   *url.URL
	Snapshot *url.URL

	visited  map[string]struct{}
	states   map[string]State
	frontier []queueItem
	items    []ItemResult
	skipped  int
}

// NewSession returns an empty session for target.
func NewSession(id string, target *url.URL) *Session {
	return &Session{
		ID:      id,
		Target:  target,
		visited: make(map[string]struct{}),
		states:  make(map[string]State),
	}
}

// Visited reports whether rawURL has been queued, fetched or failed.
func (s *Session) Visited(rawURL string) bool {
	_, ok := s.visited[visitKey(rawURL)]
	return ok
}

// State returns the current state of rawURL.
func (s *Session) State(rawURL string) State {
	if st, ok := s.states[visitKey(rawURL)]; ok {
		return st
	}
	return StateUnseen
}

// Len returns the size of the Visited Set.
func (s *Session) Len() int {
	return len(s.visited)
}

// Pending returns the number of queued items.
func (s *Session) Pending() int {
	return len(s.frontier)
}

// enqueue adds ref to the Visited Set and the frontier. It returns false when
// the URL was already seen; the membership check is what keeps a terminal URL
// from ever re-entering the queue.
func (s *Session) enqueue(ref Reference, localPath string, depth int) bool {
	key := visitKey(ref.URL)
	if _, ok := s.visited[key]; ok {
		return false
	}
	s.visited[key] = struct{}{}
	s.states[key] = StateQueued
	s.items = append(s.items, ItemResult{
		URL:   ref.URL,
		Kind:  ref.Kind,
		Path:  localPath,
		State: StateQueued,
		Depth: depth,
	})
	s.frontier = append(s.frontier, queueItem{
		key:   key,
		ref:   ref,
		path:  localPath,
		depth: depth,
		index: len(s.items) - 1,
	})
	return true
}

// next pops the oldest queued item (FIFO).
func (s *Session) next() (queueItem, bool) {
	if len(s.frontier) == 0 {
		return queueItem{}, false
	}
	item := s.frontier[0]
	s.frontier[0] = queueItem{}
	s.frontier = s.frontier[1:]
	return item, true
}

func (s *Session) markFetching(item queueItem) {
	s.states[item.key] = StateFetching
	s.items[item.index].State = StateFetching
}

func (s *Session) markStored(item queueItem, res Resource, digest string) {
	s.states[item.key] = StateStored
	result := &s.items[item.index]
	result.State = StateStored
	result.Status = res.StatusCode
	result.Bytes = int64(len(res.Body))
	result.Digest = digest
	result.Attempts = res.Attempts
	result.Duration = res.Duration
}

func (s *Session) markFailed(item queueItem, attempts int, err error) {
	s.states[item.key] = StateFailed
	result := &s.items[item.index]
	result.State = StateFailed
	result.Attempts = attempts
	if err != nil {
		result.Error = err.Error()
	}
}

func (s *Session) skip() {
	s.skipped++
}

// report snapshots the session into a Report.
func (s *Session) report() Report {
	r := Report{
		RunID:   s.ID,
		Skipped: s.skipped,
		Items:   append([]ItemResult(nil), s.items...),
	}
	if s.Target != nil {
		r.Target = s.Target.String()
	}
	if s.Snapshot != nil {
		r.Snapshot = s.Snapshot.String()
	}
	for _, item := range s.items {
		switch item.State {
		case StateStored:
			r.Stored++
		case StateFailed:
			r.Failed++
		}
	}
	return r
}
