package routing

import (
	"fmt"
	"sort"
	"sync"

	"github.com/calmisko/gatepipe/internal/core"
)

// Table holds compiled routes ordered by priority. Matching walks the
// ordered slice and returns the first enabled route that accepts the
// request, so ties on priority resolve in insertion order.
type Table struct {
	mu      sync.RWMutex
	routes  []*Route
	byID    map[string]*Route
	nextSeq uint64
}

// NewTable returns an empty route table.
func NewTable() *Table {
	return &Table{
		byID: make(map[string]*Route),
	}
}

// Add inserts a compiled route and re-sorts the table.
func (t *Table) Add(route *Route) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byID[route.ID]; exists {
		return fmt.Errorf("route %s already exists", route.ID)
	}

	route.seq = t.nextSeq
	t.nextSeq++

	t.routes = append(t.routes, route)
	t.byID[route.ID] = route
	t.sortLocked()

	return nil
}

// Remove deletes a route by ID.
func (t *Table) Remove(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byID[id]; !exists {
		return fmt.Errorf("route %s not found", id)
	}
	delete(t.byID, id)

	for i, route := range t.routes {
		if route.ID == id {
			t.routes = append(t.routes[:i], t.routes[i+1:]...)
			break
		}
	}

	return nil
}

// Get returns a route by ID.
func (t *Table) Get(id string) (*Route, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	route, ok := t.byID[id]
	return route, ok
}

// List returns all routes in match order.
func (t *Table) List() []*Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]*Route, len(t.routes))
	copy(result, t.routes)
	return result
}

// Len returns the number of routes in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.routes)
}

// Match returns the first route that accepts the request, or nil when
// none does.
func (t *Table) Match(req *core.Request) *Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, route := range t.routes {
		if route.Matches(req) {
			return route
		}
	}
	return nil
}

func (t *Table) sortLocked() {
	sort.Slice(t.routes, func(i, j int) bool {
		if t.routes[i].Config.Priority != t.routes[j].Config.Priority {
			return t.routes[i].Config.Priority < t.routes[j].Config.Priority
		}
		return t.routes[i].seq < t.routes[j].seq
	})
}
