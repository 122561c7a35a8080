package usecase

import (
	"context"
	"sync"
)

// Registry keeps one workflow per signed-in user.
type Registry struct {
	deps WorkflowDeps

	mu        sync.Mutex
	workflows map[string]*Workflow
}

// NewRegistry creates an empty registry; workflows are built from deps.
func NewRegistry(deps WorkflowDeps) *Registry {
	return &Registry{deps: deps, workflows: make(map[string]*Workflow)}
}

// Get returns the caller's workflow, creating it on first use.
func (r *Registry) Get(ctx context.Context) (*Workflow, error) {
	email, ok := r.deps.Identity.Email(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}

	r.mu.Lock()
	w, found := r.workflows[email]
	r.mu.Unlock()
	if found {
		return w, nil
	}

	created, err := NewWorkflow(ctx, r.deps)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, found := r.workflows[email]; found {
		return existing, nil
	}
	r.workflows[email] = created
	return created, nil
}

// Discard resets and forgets the caller's workflow. It reports whether one
// existed.
func (r *Registry) Discard(ctx context.Context) bool {
	email, ok := r.deps.Identity.Email(ctx)
	if !ok {
		return false
	}

	r.mu.Lock()
	w, found := r.workflows[email]
	delete(r.workflows, email)
	r.mu.Unlock()

	if found {
		w.Reset()
	}
	return found
}

// Len is the number of live workflows.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workflows)
}
