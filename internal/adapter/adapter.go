// Package adapter picks one working backend from an ordered list of candidates.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

var (
	// ErrAdapterUnavailable matches failures of an explicitly chosen candidate.
	ErrAdapterUnavailable = errors.New("adapter unavailable")
	// ErrNoAdapterAvailable matches exhaustion of every candidate.
	ErrNoAdapterAvailable = errors.New("no adapter available")
)

// Auto is the explicit-choice value that requests ordered detection.
const Auto = "auto"

// Candidate is one named backend. Probe is a cheap, side-effect-free
// availability check; nil means always available. Construct acquires the
// backend and must release anything it acquired before returning an error.
// Verify, when set, checks a constructed instance; a failing instance is
// closed before the next candidate is tried.
type Candidate[T any] struct {
	Name      string
	Probe     func(ctx context.Context) error
	Construct func(ctx context.Context) (T, error)
	Verify    func(ctx context.Context, instance T) error
}

// Attempt records one failed candidate.
type Attempt struct {
	Name string
	Err  error
}

func (a Attempt) String() string {
	return fmt.Sprintf("%s: %v", a.Name, a.Err)
}

// UnavailableError reports that the explicitly chosen candidate failed.
type UnavailableError struct {
	Kind string
	Name string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s adapter %q unavailable: %v", e.Kind, e.Name, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrAdapterUnavailable }

// NoneAvailableError lists every candidate tried and why it failed.
type NoneAvailableError struct {
	Kind     string
	Attempts []Attempt
}

func (e *NoneAvailableError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("no %s adapter available: no candidates configured", e.Kind)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		parts = append(parts, attempt.String())
	}
	return fmt.Sprintf("no %s adapter available (%s)", e.Kind, strings.Join(parts, "; "))
}

func (e *NoneAvailableError) Is(target error) bool { return target == ErrNoAdapterAvailable }

// Selection is the chosen instance and the candidate that produced it.
type Selection[T any] struct {
	Name     string
	Instance T
	Skipped  []Attempt
}

// Select returns the first working candidate. When explicit names a
// candidate (anything but "" or Auto), only that candidate is tried and its
// failure is returned without falling back.
func Select[T any](ctx context.Context, logger *slog.Logger, kind string, candidates []Candidate[T], explicit string) (Selection[T], error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	explicit = strings.TrimSpace(strings.ToLower(explicit))

	if explicit != "" && explicit != Auto {
		for _, candidate := range candidates {
			if candidate.Name != explicit {
				continue
			}
			instance, err := try(ctx, candidate)
			if err != nil {
				return Selection[T]{}, &UnavailableError{Kind: kind, Name: explicit, Err: err}
			}
			logger.Info("adapter selected", "kind", kind, "adapter", explicit, "explicit", true)
			return Selection[T]{Name: explicit, Instance: instance}, nil
		}
		return Selection[T]{}, &UnavailableError{Kind: kind, Name: explicit, Err: fmt.Errorf("unknown adapter (choose one of %s)", names(candidates))}
	}

	var attempts []Attempt
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return Selection[T]{}, err
		}
		instance, err := try(ctx, candidate)
		if err != nil {
			attempts = append(attempts, Attempt{Name: candidate.Name, Err: err})
			logger.Warn("adapter candidate unavailable, trying next", "kind", kind, "adapter", candidate.Name, "error", err.Error())
			continue
		}
		logger.Info("adapter selected", "kind", kind, "adapter", candidate.Name, "skipped", len(attempts))
		return Selection[T]{Name: candidate.Name, Instance: instance, Skipped: attempts}, nil
	}
	return Selection[T]{}, &NoneAvailableError{Kind: kind, Attempts: attempts}
}

func try[T any](ctx context.Context, candidate Candidate[T]) (T, error) {
	var zero T
	if candidate.Probe != nil {
		if err := candidate.Probe(ctx); err != nil {
			return zero, fmt.Errorf("probe: %w", err)
		}
	}
	if candidate.Construct == nil {
		return zero, errors.New("candidate has no constructor")
	}
	instance, err := candidate.Construct(ctx)
	if err != nil {
		return zero, fmt.Errorf("construct: %w", err)
	}
	if candidate.Verify != nil {
		if err := candidate.Verify(ctx, instance); err != nil {
			release(instance)
			return zero, fmt.Errorf("verify: %w", err)
		}
	}
	return instance, nil
}

func release(instance any) {
	if closer, ok := instance.(io.Closer); ok {
		_ = closer.Close()
	}
}

func names[T any](candidates []Candidate[T]) string {
	out := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		out = append(out, candidate.Name)
	}
	return strings.Join(out, ", ")
}
