package service

import (
	"context"
	"time"

	"github.com/alexanderramin/treeflow/internal/cascade"
	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/timing"
)

// levelResolved reports whether every slot at level, removed ones included,
// is accepted or handed to an inheritor. A level without slots is not.
func (st *flowState) levelResolved(level int) bool {
	slots := st.arena.SlotsAtLevel(level)
	if len(slots) == 0 {
		return false
	}
	for _, p := range slots {
		if !p.Resolved() {
			return false
		}
	}
	return true
}

// moveToNextLevel advances or completes the flow once the current cohort is
// resolved. It reports whether the flow moved.
func (st *flowState) moveToNextLevel(ctx context.Context, now time.Time) (bool, error) {
	f := st.flow
	if f.OnPause || !f.Active() || !st.levelResolved(f.CurrentLevel) {
		return false, nil
	}

	next := f.CurrentLevel + 1
	if f.IsOneChildTree() {
		if f.MaxLevel() >= 0 && next > f.MaxLevel() {
			return true, st.complete(ctx, now)
		}
		if len(st.arena.AtLevel(next)) == 0 {
			filled, err := st.fillChain(ctx, now)
			if err != nil {
				return false, err
			}
			if filled == 0 {
				return true, st.complete(ctx, now)
			}
		}
		if !f.AutoContinue {
			f.Pause(now)
			return false, nil
		}
		f.AdvanceLevel(now)
		return true, nil
	}

	pool, err := st.pool(ctx)
	if err != nil {
		return false, err
	}
	if len(pool) == 0 {
		return true, st.complete(ctx, now)
	}
	if !f.AutoContinue {
		f.Pause(now)
		return false, nil
	}
	if err := st.openNextLevel(pool, now); err != nil {
		return false, err
	}
	f.AdvanceLevel(now)
	return true, nil
}

func (st *flowState) complete(ctx context.Context, now time.Time) error {
	project, err := st.loadProject(ctx)
	if err != nil {
		return err
	}
	st.flow.Complete(now)
	project.Status = domain.ProjectRegistrationCompleted
	project.UpdatedAt = now
	st.projectDirty = true
	return nil
}

// openAt is when slots created at now open for registration.
func (st *flowState) openAt(now time.Time) time.Time {
	return later(now, st.flow.MustBeRegisteredFrom)
}

// openNextLevel gives every accepted sponsor at the current level up to
// branching-factor children, drawing users from pool in order.
func (st *flowState) openNextLevel(pool []string, now time.Time) error {
	f := st.flow
	w := timing.Windows(st.openAt(now), f.TimingConfig(), f.CurrentLevel+1)
	for _, sponsor := range st.arena.AtLevel(f.CurrentLevel) {
		if !sponsor.IsAccepted() {
			continue
		}
		for len(pool) > 0 && st.arena.CanAdopt(sponsor.ID) {
			if _, err := st.addSlot(pool[0], sponsor, w.RegistrationStart, w.AcceptStart, now); err != nil {
				return err
			}
			pool = pool[1:]
		}
		if len(st.arena.ActiveChildrenOf(&sponsor.ID)) > 0 {
			from := w.AcceptStart
			sponsor.MustAcceptChildrenFrom = &from
			sponsor.UpdatedAt = now
			st.touch(sponsor)
		}
		if len(pool) == 0 {
			break
		}
	}
	return nil
}

// fillChain extends a one-child chain below its deepest live participant
// with users from the pool, down to the group's last level. New slots are
// timed as a chain opening no earlier than the tail's accept stage end. A new
// slot takes over a removed slot at its level that has no inheritor yet. It
// returns how many slots it created.
func (st *flowState) fillChain(ctx context.Context, now time.Time) (int, error) {
	f := st.flow
	root := st.arena.Root()
	if root == nil {
		return 0, nil
	}
	line, err := st.arena.Walk(root.ID)
	if err != nil {
		return 0, err
	}
	tail := line[len(line)-1]

	missing := f.MaxLevel() - tail.Level
	if missing <= 0 {
		return 0, nil
	}
	pool, err := st.pool(ctx)
	if err != nil {
		return 0, err
	}
	if len(pool) < missing {
		missing = len(pool)
	}

	start := later(st.openAt(now), tail.WhenAcceptationEnds(f.TimeForAccept))
	windows := timing.Chain(start, f.TimingConfig(), tail.Level+1, missing)
	for i, w := range windows {
		p, err := st.addSlot(pool[i], tail, w.RegistrationStart, w.AcceptStart, now)
		if err != nil {
			return i, err
		}
		from := w.AcceptStart
		tail.MustAcceptChildrenFrom = &from
		tail.UpdatedAt = now
		st.touch(tail)
		st.takeOverVacancy(p, now)
		tail = p
	}
	return len(windows), nil
}

// takeOverVacancy links p as inheritor of the first removed slot at its
// level that was never replaced.
func (st *flowState) takeOverVacancy(p *domain.Participant, now time.Time) {
	for _, old := range st.arena.SlotsAtLevel(p.Level) {
		if old.Deleted && old.ReplacedBy == nil {
			heir, was := p.ID, old.ID
			old.ReplacedBy = &heir
			old.UpdatedAt = now
			p.InheritorOf = &was
			st.touch(old)
			return
		}
	}
}

// continueChain resumes a paused one-child flow. The chain is refilled from
// the pool, and the level to open is re-timed from openAt when its holder has
// not registered yet.
func (st *flowState) continueChain(ctx context.Context, now time.Time) error {
	f := st.flow
	target := f.CurrentLevel
	if st.levelResolved(target) {
		target++
	}
	if f.MaxLevel() >= 0 && target > f.MaxLevel() {
		return st.complete(ctx, now)
	}
	if _, err := st.fillChain(ctx, now); err != nil {
		return err
	}
	line := st.arena.AtLevel(target)
	if len(line) == 0 {
		return st.complete(ctx, now)
	}

	head := line[0]
	if !head.Registered {
		changes, err := cascade.Propagate(st.arena, f, st.arena.Parent(head), head, st.openAt(now), now)
		if err != nil {
			return err
		}
		for _, c := range changes {
			st.touch(c.Sponsor, c.Participant)
		}
	}
	if target > f.CurrentLevel {
		f.AdvanceLevel(now)
	} else {
		f.Resume(now)
	}
	return nil
}
