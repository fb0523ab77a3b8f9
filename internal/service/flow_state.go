package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alexanderramin/treeflow/internal/db"
	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/repository"
	"github.com/alexanderramin/treeflow/internal/tree"
	"github.com/google/uuid"
)

// flowState is one flow loaded inside a transaction. Changes are collected
// in memory and written by flush in a fixed order: new slots first (children
// may be re-parented onto them), then updated slots, the flow, the project
// and queued jobs.
type flowState struct {
	flows        repository.FlowRepo
	participants repository.ParticipantRepo
	projects     repository.ProjectRepo
	candidates   repository.CandidateRepo
	users        repository.UserRepo
	jobs         repository.JobRepo

	flow    *domain.Flow
	project *domain.Project
	arena   *tree.Arena

	created      []*domain.Participant
	createdIDs   map[string]bool
	dirty        []*domain.Participant
	dirtyIDs     map[string]bool
	projectDirty bool
	enqueued     bool
}

func newFlowState(tx db.DBTX) *flowState {
	return &flowState{
		flows:        repository.NewSQLiteFlowRepo(tx),
		participants: repository.NewSQLiteParticipantRepo(tx),
		projects:     repository.NewSQLiteProjectRepo(tx),
		candidates:   repository.NewSQLiteCandidateRepo(tx),
		users:        repository.NewSQLiteUserRepo(tx),
		jobs:         repository.NewSQLiteJobRepo(tx),
		createdIDs:   make(map[string]bool),
		dirtyIDs:     make(map[string]bool),
	}
}

func loadFlowState(ctx context.Context, tx db.DBTX, flowID string) (*flowState, error) {
	st := newFlowState(tx)
	flow, err := st.flows.GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}
	all, err := st.participants.ListByFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	st.flow = flow
	st.arena = tree.Load(flow.BranchingFactor(), all)
	return st, nil
}

// participant returns the slot with id or a not-found error.
func (st *flowState) participant(id string) (*domain.Participant, error) {
	p, ok := st.arena.Get(id)
	if !ok {
		return nil, fmt.Errorf("participant %s: %w", id, repository.ErrNotFound)
	}
	return p, nil
}

func (st *flowState) touch(ps ...*domain.Participant) {
	for _, p := range ps {
		if p == nil || st.createdIDs[p.ID] || st.dirtyIDs[p.ID] {
			continue
		}
		st.dirtyIDs[p.ID] = true
		st.dirty = append(st.dirty, p)
	}
}

// addSlot places userID under parent (nil for the root) with the given
// window and records it for insertion.
func (st *flowState) addSlot(userID string, parent *domain.Participant, from, acceptStart, now time.Time) (*domain.Participant, error) {
	p := &domain.Participant{
		ID:                   uuid.New().String(),
		FlowID:               st.flow.ID,
		UserID:               userID,
		Seq:                  st.arena.MaxSeq() + 1,
		MustBeRegisteredFrom: from,
		AcceptStageStartsAt:  acceptStart,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if parent != nil {
		pid := parent.ID
		p.ParentID = &pid
		p.Level = parent.Level + 1
	}
	if err := st.arena.Insert(p); err != nil {
		return nil, err
	}
	st.created = append(st.created, p)
	st.createdIDs[p.ID] = true
	return p, nil
}

func (st *flowState) loadProject(ctx context.Context) (*domain.Project, error) {
	if st.project != nil {
		return st.project, nil
	}
	p, err := st.projects.GetByID(ctx, st.flow.ProjectID)
	if err != nil {
		return nil, err
	}
	st.project = p
	return p, nil
}

// pool returns the project's candidates in order, minus the leader and any
// user who holds or held a slot in the flow.
func (st *flowState) pool(ctx context.Context) ([]string, error) {
	cands, err := st.candidates.ListByProject(ctx, st.flow.ProjectID)
	if err != nil {
		return nil, err
	}
	taken := map[string]bool{st.flow.LeaderID: true}
	for _, p := range st.arena.All() {
		taken[p.UserID] = true
	}
	var out []string
	for _, c := range cands {
		if !taken[c.UserID] {
			out = append(out, c.UserID)
		}
	}
	return out, nil
}

// activeSlotOf reports whether userID occupies a live slot.
func (st *flowState) activeSlotOf(userID string) *domain.Participant {
	for _, p := range st.arena.All() {
		if p.UserID == userID && !p.Deleted {
			return p
		}
	}
	return nil
}

func (st *flowState) enqueueCascade(ctx context.Context, now time.Time) error {
	job := &domain.Job{
		ID:          uuid.New().String(),
		Kind:        domain.JobCascade,
		FlowID:      st.flow.ID,
		AvailableAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := st.jobs.Enqueue(ctx, job); err != nil {
		return err
	}
	st.enqueued = true
	return nil
}

func (st *flowState) flush(ctx context.Context) error {
	for _, p := range st.created {
		if err := st.participants.Create(ctx, p); err != nil {
			return err
		}
	}
	for _, p := range st.dirty {
		if err := st.participants.Update(ctx, p); err != nil {
			return err
		}
	}
	if err := st.flows.Update(ctx, st.flow); err != nil {
		return err
	}
	if st.projectDirty {
		if err := st.projects.Update(ctx, st.project); err != nil {
			return err
		}
	}
	return nil
}

// later returns the later of two instants.
func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func treeFor(f *domain.Flow) *tree.Arena {
	return tree.New(f.BranchingFactor())
}
