// Package assessment turns a decoded submission payload into a scored
// outcome, one processor per assessment tool.
package assessment

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/maruonline/leadgen/internal/model"
)

// ErrInvalidInput marks processing failures caused by the submitted data,
// such as a CSV without usable deals.
var ErrInvalidInput = eris.New("assessment: invalid input")

// ErrUnsupported is returned when no processor is registered for an app type.
var ErrUnsupported = eris.New("assessment: unsupported app type")

// Processor scores one kind of assessment.
type Processor interface {
	AppType() model.AppType
	Process(ctx context.Context, p model.Payload) (model.Outcome, error)
}

// Registry dispatches payloads to the processor for their app type.
type Registry struct {
	procs map[model.AppType]Processor
}

// NewRegistry indexes procs by app type. A later processor for the same type
// replaces an earlier one.
func NewRegistry(procs ...Processor) *Registry {
	r := &Registry{procs: make(map[model.AppType]Processor, len(procs))}
	for _, p := range procs {
		r.procs[p.AppType()] = p
	}
	return r
}

// Get returns the processor registered for t.
func (r *Registry) Get(t model.AppType) (Processor, bool) {
	p, ok := r.procs[t]
	return p, ok
}

// AppTypes lists the registered app types in sorted order.
func (r *Registry) AppTypes() []model.AppType {
	out := make([]model.AppType, 0, len(r.procs))
	for t := range r.procs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Process runs the processor matching p.AppType().
func (r *Registry) Process(ctx context.Context, p model.Payload) (model.Outcome, error) {
	proc, ok := r.procs[p.AppType()]
	if !ok {
		return model.Outcome{}, eris.Wrapf(ErrUnsupported, "assessment: %s", p.AppType())
	}
	return proc.Process(ctx, p)
}

func payloadAs[T model.Payload](p model.Payload) (T, error) {
	typed, ok := p.(T)
	if !ok {
		var zero T
		return zero, eris.Wrapf(ErrInvalidInput, "assessment: unexpected payload %T", p)
	}
	return typed, nil
}
