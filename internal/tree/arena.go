// Package tree holds a flow's participants as an arena indexed by id, with a
// parent → ordered children index so walks cost O(depth) instead of one
// query per hop.
package tree

import (
	"fmt"
	"sort"

	"github.com/alexanderramin/treeflow/internal/domain"
)

// rootKey indexes participants without a parent.
const rootKey = ""

type Arena struct {
	branching int
	nodes     map[string]*domain.Participant
	children  map[string][]string
}

// New returns an empty arena enforcing the given branching factor.
func New(branching int) *Arena {
	return &Arena{
		branching: branching,
		nodes:     make(map[string]*domain.Participant),
		children:  make(map[string][]string),
	}
}

// Load indexes persisted participants without structural checks, so that a
// corrupted tree can still be loaded and reported by Walk.
func Load(branching int, participants []*domain.Participant) *Arena {
	a := New(branching)
	sorted := append([]*domain.Participant(nil), participants...)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	for _, p := range sorted {
		a.nodes[p.ID] = p
		key := parentKey(p.ParentID)
		a.children[key] = append(a.children[key], p.ID)
	}
	return a
}

func less(a, b *domain.Participant) bool {
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func parentKey(id *string) string {
	if id == nil {
		return rootKey
	}
	return *id
}

func (a *Arena) Len() int { return len(a.nodes) }

func (a *Arena) Get(id string) (*domain.Participant, bool) {
	p, ok := a.nodes[id]
	return p, ok
}

// Insert adds p under its parent. The arena is unchanged when an invariant
// would be violated.
func (a *Arena) Insert(p *domain.Participant) error {
	if _, dup := a.nodes[p.ID]; dup {
		return fmt.Errorf("participant %s already in tree: %w", p.ID, domain.ErrValidation)
	}
	if p.ParentID == nil {
		if p.Level != 0 {
			return fmt.Errorf("root participant at level %d: %w", p.Level, domain.ErrInvalidLevel)
		}
		if len(a.activeIDs(rootKey)) >= 1 && !p.Deleted {
			return fmt.Errorf("flow already has a root: %w", domain.ErrCapacityExceeded)
		}
	} else {
		parent, ok := a.nodes[*p.ParentID]
		if !ok {
			return fmt.Errorf("unknown parent %s: %w", *p.ParentID, domain.ErrValidation)
		}
		if p.Level != parent.Level+1 {
			return fmt.Errorf("child level %d under parent level %d: %w", p.Level, parent.Level, domain.ErrInvalidLevel)
		}
		if !p.Deleted && len(a.activeIDs(parent.ID)) >= a.branching {
			return fmt.Errorf("sponsor %s already has %d children: %w", parent.ID, a.branching, domain.ErrCapacityExceeded)
		}
	}
	a.nodes[p.ID] = p
	key := parentKey(p.ParentID)
	a.children[key] = append(a.children[key], p.ID)
	return nil
}

// CanAdopt reports whether parentID has a free child slot.
func (a *Arena) CanAdopt(parentID string) bool {
	return len(a.activeIDs(parentID)) < a.branching
}

// Reparent moves a child under a new parent at the same level as before.
// Used when an inheritor takes over a removed participant's slot.
func (a *Arena) Reparent(childID, newParentID string) error {
	child, ok := a.nodes[childID]
	if !ok {
		return fmt.Errorf("unknown participant %s: %w", childID, domain.ErrValidation)
	}
	parent, ok := a.nodes[newParentID]
	if !ok {
		return fmt.Errorf("unknown parent %s: %w", newParentID, domain.ErrValidation)
	}
	if child.Level != parent.Level+1 {
		return fmt.Errorf("child level %d under parent level %d: %w", child.Level, parent.Level, domain.ErrInvalidLevel)
	}
	oldKey := parentKey(child.ParentID)
	ids := a.children[oldKey]
	for i, id := range ids {
		if id == childID {
			a.children[oldKey] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	pid := parent.ID
	child.ParentID = &pid
	a.children[pid] = append(a.children[pid], childID)
	sort.SliceStable(a.children[pid], func(i, j int) bool {
		return less(a.nodes[a.children[pid][i]], a.nodes[a.children[pid][j]])
	})
	return nil
}

// ChildrenOf returns the immediate children of parentID ordered by creation,
// removed ones included. A nil parentID returns the root-level participants.
func (a *Arena) ChildrenOf(parentID *string) []*domain.Participant {
	ids := a.children[parentKey(parentID)]
	out := make([]*domain.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.nodes[id])
	}
	return out
}

// ActiveChildrenOf is ChildrenOf without removed participants.
func (a *Arena) ActiveChildrenOf(parentID *string) []*domain.Participant {
	var out []*domain.Participant
	for _, p := range a.ChildrenOf(parentID) {
		if !p.Deleted {
			out = append(out, p)
		}
	}
	return out
}

// FirstChild returns the earliest-created child still occupying a slot.
func (a *Arena) FirstChild(p *domain.Participant) *domain.Participant {
	id := p.ID
	for _, c := range a.ChildrenOf(&id) {
		if !c.Deleted {
			return c
		}
	}
	return nil
}

func (a *Arena) Parent(p *domain.Participant) *domain.Participant {
	if p.ParentID == nil {
		return nil
	}
	return a.nodes[*p.ParentID]
}

// Root returns the active root participant.
func (a *Arena) Root() *domain.Participant {
	roots := a.ActiveChildrenOf(nil)
	if len(roots) == 0 {
		return nil
	}
	return roots[0]
}

// AtLevel returns active participants at level in creation order.
func (a *Arena) AtLevel(level int) []*domain.Participant {
	var out []*domain.Participant
	for _, p := range a.All() {
		if p.Level == level && !p.Deleted {
			out = append(out, p)
		}
	}
	return out
}

// SlotsAtLevel returns every participant at level, removed ones included.
func (a *Arena) SlotsAtLevel(level int) []*domain.Participant {
	var out []*domain.Participant
	for _, p := range a.All() {
		if p.Level == level {
			out = append(out, p)
		}
	}
	return out
}

// All returns every participant in creation order.
func (a *Arena) All() []*domain.Participant {
	out := make([]*domain.Participant, 0, len(a.nodes))
	for _, p := range a.nodes {
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Depth returns the deepest level held by an active participant, or -1.
func (a *Arena) Depth() int {
	depth := -1
	for _, p := range a.nodes {
		if !p.Deleted && p.Level > depth {
			depth = p.Level
		}
	}
	return depth
}

// MaxSeq returns the highest creation sequence number in the arena.
func (a *Arena) MaxSeq() int {
	highest := 0
	for _, p := range a.nodes {
		if p.Seq > highest {
			highest = p.Seq
		}
	}
	return highest
}

// Walk returns start followed by each first child below it. A revisited id
// means the parent links form a loop and yields ErrCycleDetected.
func (a *Arena) Walk(startID string) ([]*domain.Participant, error) {
	cur, ok := a.nodes[startID]
	if !ok {
		return nil, fmt.Errorf("unknown participant %s: %w", startID, domain.ErrValidation)
	}
	visited := map[string]bool{}
	var line []*domain.Participant
	for cur != nil {
		if visited[cur.ID] {
			return line, fmt.Errorf("participant %s revisited: %w", cur.ID, domain.ErrCycleDetected)
		}
		visited[cur.ID] = true
		line = append(line, cur)
		cur = a.FirstChild(cur)
	}
	return line, nil
}

// Descendants returns every active participant below id, breadth first.
func (a *Arena) Descendants(id string) ([]*domain.Participant, error) {
	visited := map[string]bool{id: true}
	queue := []string{id}
	var out []*domain.Participant
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range a.ActiveChildrenOf(&cur) {
			if visited[c.ID] {
				return out, fmt.Errorf("participant %s revisited: %w", c.ID, domain.ErrCycleDetected)
			}
			visited[c.ID] = true
			out = append(out, c)
			queue = append(queue, c.ID)
		}
	}
	return out, nil
}

func (a *Arena) activeIDs(key string) []string {
	var out []string
	for _, id := range a.children[key] {
		if !a.nodes[id].Deleted {
			out = append(out, id)
		}
	}
	return out
}
