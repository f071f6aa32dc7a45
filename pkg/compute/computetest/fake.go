// Package computetest provides a scriptable in-memory backend for
// orchestrator tests.
package computetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/atmoslabs/simbatch/pkg/compute"
)

// Fake is an in-memory compute.Backend. Tests drive backend state
// transitions explicitly via SetState and inject errors per operation.
type Fake struct {
	mu sync.Mutex

	next        int
	states      map[string]compute.Description
	submissions []compute.Submission
	terminated  []string

	// SubmitErr, DescribeErr, TerminateErr are returned (once set) by the
	// corresponding operation until cleared.
	SubmitErr    error
	DescribeErr  error
	TerminateErr error

	// SubmitHook, when set, runs at the start of every Submit, before the
	// handle is issued. Tests use it to interleave other actors with an
	// in-flight submission.
	SubmitHook func(compute.Submission)
}

var _ compute.Backend = (*Fake)(nil)

func New() *Fake {
	return &Fake{states: make(map[string]compute.Description)}
}

func (f *Fake) Submit(_ context.Context, sub compute.Submission) (string, error) {
	f.mu.Lock()
	hook := f.SubmitHook
	f.mu.Unlock()
	if hook != nil {
		hook(sub)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}

	f.next++
	handle := fmt.Sprintf("batch-%04d", f.next)
	f.states[handle] = compute.Description{State: compute.StatePending}
	f.submissions = append(f.submissions, sub)
	return handle, nil
}

func (f *Fake) Describe(_ context.Context, handle string) (compute.Description, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.DescribeErr != nil {
		return compute.Description{}, f.DescribeErr
	}

	desc, ok := f.states[handle]
	if !ok {
		return compute.Description{}, &compute.BackendError{
			Op: "Describe", Handle: handle, Err: compute.ErrNotFound,
		}
	}
	return desc, nil
}

func (f *Fake) Terminate(_ context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.TerminateErr != nil {
		return f.TerminateErr
	}

	f.terminated = append(f.terminated, handle)
	if desc, ok := f.states[handle]; ok && !desc.State.Terminal() {
		f.states[handle] = compute.Description{State: compute.StateFailed, Detail: "terminated by request"}
	}
	return nil
}

// SetState scripts the state a subsequent Describe reports for handle.
func (f *Fake) SetState(handle string, state compute.State, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[handle] = compute.Description{State: state, Detail: detail}
}

// Submissions returns a copy of every accepted submission, in order.
func (f *Fake) Submissions() []compute.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]compute.Submission, len(f.submissions))
	copy(out, f.submissions)
	return out
}

// SubmitCount returns how many submissions the backend accepted.
func (f *Fake) SubmitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submissions)
}

// Terminated returns the handles Terminate was called with, in order.
func (f *Fake) Terminated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.terminated))
	copy(out, f.terminated)
	return out
}

// LastHandle returns the handle of the most recent submission.
func (f *Fake) LastHandle() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf("batch-%04d", f.next)
}
