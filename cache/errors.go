package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCapacity is wrapped by ConfigError when Options.Capacity is
	// not in [1, MaxCapacity].
	ErrInvalidCapacity = errors.New("cache: capacity must be in [1, MaxCapacity]")

	// ErrCapabilityViolation matches every *ViolationError via errors.Is.
	ErrCapabilityViolation = errors.New("cache: capability violation")

	// ErrNoLoader is returned by Guarded.GetOrLoad when no Loader was configured in Options.
	ErrNoLoader = errors.New("cache: no Loader provided")
)

// ConfigError reports an invalid construction option. It is only ever
// produced by New; a cache that was built successfully never returns it.
type ConfigError struct {
	Field string
	Value int
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v (%s=%d)", ErrInvalidCapacity, e.Field, e.Value)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidCapacity }

// ViolationKind classifies a misuse of the scope protocol.
type ViolationKind uint8

const (
	// ViolationTagMismatch: a Perm was presented to a Handle minted by another scope.
	ViolationTagMismatch ViolationKind = iota + 1
	// ViolationSharedBorrow: an exclusive operation while Refs are still outstanding.
	ViolationSharedBorrow
	// ViolationExclusiveBorrow: any borrowing operation while a MutRef or Put holds the Perm.
	ViolationExclusiveBorrow
	// ViolationScopeClosed: Perm or a reference used after its scope returned.
	ViolationScopeClosed
	// ViolationHandleClosed: Handle used after Close or after its scope returned.
	ViolationHandleClosed
	// ViolationRefReleased: a reference used after Release or Perm.ReleaseAll.
	ViolationRefReleased
	// ViolationScopeActive: a second scope or a direct call on a cache that already has an open scope.
	ViolationScopeActive
)

func (k ViolationKind) String() string {
	switch k {
	case ViolationTagMismatch:
		return "tag_mismatch"
	case ViolationSharedBorrow:
		return "shared_borrow"
	case ViolationExclusiveBorrow:
		return "exclusive_borrow"
	case ViolationScopeClosed:
		return "scope_closed"
	case ViolationHandleClosed:
		return "handle_closed"
	case ViolationRefReleased:
		return "ref_released"
	case ViolationScopeActive:
		return "scope_active"
	default:
		return "unknown"
	}
}

// ViolationError is the panic value raised when the scope protocol is broken.
// It is raised before any cache state changes.
type ViolationError struct {
	Op   string
	Kind ViolationKind
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrCapabilityViolation, e.Op, e.Kind)
}

func (e *ViolationError) Is(target error) bool { return target == ErrCapabilityViolation }
