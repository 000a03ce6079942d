package workflow

import (
	"fmt"
	"sync"

	"meshnerd/internal/logging"
)

// Snapshot is an immutable view of the catalog at one point in time.
// Matching and expansion hold a snapshot for the whole request, so a
// concurrent reload can never change definitions mid-decision.
type Snapshot struct {
	ordered []*WorkflowDefinition
	byName  map[string]*WorkflowDefinition
}

// Get returns the definition with the given name, if present.
func (s *Snapshot) Get(name string) (*WorkflowDefinition, bool) {
	d, ok := s.byName[name]
	return d, ok
}

// All returns the definitions in declaration order. Callers must not
// mutate the returned slice or its elements.
func (s *Snapshot) All() []*WorkflowDefinition { return s.ordered }

// Names returns the workflow names in declaration order.
func (s *Snapshot) Names() []string {
	names := make([]string, len(s.ordered))
	for i, d := range s.ordered {
		names[i] = d.Name
	}
	return names
}

// Len returns the number of definitions in the snapshot.
func (s *Snapshot) Len() int { return len(s.ordered) }

// Catalog holds the current set of workflow definitions. Writers swap
// in a whole new snapshot; readers take the current one and keep using
// it unaffected by later swaps.
type Catalog struct {
	mu      sync.RWMutex
	current *Snapshot
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{current: &Snapshot{byName: map[string]*WorkflowDefinition{}}}
}

// Snapshot returns the current immutable view.
func (c *Catalog) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Replace validates defs and atomically installs them as the new
// snapshot. Declaration order is preserved; duplicate names and invalid
// definitions reject the whole batch, leaving the old snapshot live.
func (c *Catalog) Replace(defs []*WorkflowDefinition) error {
	snap := &Snapshot{
		ordered: make([]*WorkflowDefinition, 0, len(defs)),
		byName:  make(map[string]*WorkflowDefinition, len(defs)),
	}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("catalog replace: %w", err)
		}
		if _, dup := snap.byName[d.Name]; dup {
			return fmt.Errorf("catalog replace: duplicate workflow name %q", d.Name)
		}
		snap.ordered = append(snap.ordered, d)
		snap.byName[d.Name] = d
	}

	c.mu.Lock()
	c.current = snap
	c.mu.Unlock()

	logging.Catalog("Catalog replaced: %d workflows", len(defs))
	return nil
}
