package submit

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

// State is a stage of a run submission.
type State string

const (
	StateStart            State = "START"
	StateIdentityResolved State = "IDENTITY_RESOLVED"
	StateDuplicateChecked State = "DUPLICATE_CHECKED"
	StateParentInserted   State = "PARENT_INSERTED"
	StateChildrenIngested State = "CHILDREN_INGESTED"
	StateCommitted        State = "COMMITTED"
	// StateRejected means the run was already recorded. It is a normal
	// outcome, not a failure.
	StateRejected State = "REJECTED"
)

const (
	eventResolve        = "resolve"
	eventCheckDuplicate = "check_duplicate"
	eventReject         = "reject"
	eventInsertParent   = "insert_parent"
	eventIngestChildren = "ingest_children"
	eventCommit         = "commit"
)

var submissionEvents = fsm.Events{
	{Name: eventResolve, Src: []string{string(StateStart)}, Dst: string(StateIdentityResolved)},
	{Name: eventCheckDuplicate, Src: []string{string(StateIdentityResolved)}, Dst: string(StateDuplicateChecked)},
	{Name: eventReject, Src: []string{string(StateDuplicateChecked)}, Dst: string(StateRejected)},
	{Name: eventInsertParent, Src: []string{string(StateDuplicateChecked)}, Dst: string(StateParentInserted)},
	{Name: eventIngestChildren, Src: []string{string(StateParentInserted)}, Dst: string(StateChildrenIngested)},
	{Name: eventCommit, Src: []string{string(StateChildrenIngested)}, Dst: string(StateCommitted)},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	for _, e := range submissionEvents {
		for _, src := range e.Src {
			if src == string(s) {
				return false
			}
		}
	}

	return true
}

// machine tracks one submission. It only moves forward.
type machine struct {
	fsm *fsm.FSM
}

func newMachine() *machine {
	return &machine{
		fsm: fsm.NewFSM(string(StateStart), submissionEvents, fsm.Callbacks{}),
	}
}

// Current returns the state the submission is in.
func (m *machine) Current() State {
	return State(m.fsm.Current())
}

// fire applies event. An event that is not allowed from the current state
// leaves the state unchanged and returns an error.
func (m *machine) fire(ctx context.Context, event string) error {
	from := m.fsm.Current()

	if err := m.fsm.Event(ctx, event); err != nil {
		return fmt.Errorf("invalid submission transition %s from %s: %w", event, from, err)
	}

	return nil
}
