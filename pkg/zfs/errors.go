package zfs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is matched by every *NotFoundError
	ErrNotFound = errors.New("not found")
	// ErrStructural aborts a load: malformed rows, missing zpool rows, unattachable paths
	ErrStructural = errors.New("structural inconsistency")
	// ErrPrecondition is returned when a caller passes arguments of the wrong shape
	ErrPrecondition = errors.New("precondition violation")
	// ErrMountsUnavailable is returned by mount dependent operations when the load skipped mount properties
	ErrMountsUnavailable = errors.New("mount information not loaded, load the poolset with mounts enabled")
	// ErrPropertyNotLoaded is returned when a property was not requested by the last load
	ErrPropertyNotLoaded = errors.New("property not loaded")
	// ErrInvalidated is returned when traversing an entity that was removed from the tree
	ErrInvalidated = errors.New("entity invalidated")
	// ErrCommandFailed is matched by every *CommandError
	ErrCommandFailed = errors.New("command failed")
)

// NotFoundError names what was searched for and where
type NotFoundError struct {
	Kind  string
	Name  string
	Scope string
}

func (e *NotFoundError) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("no such %s %s", e.Kind, e.Name)
	}
	return fmt.Sprintf("no such %s %s under %s", e.Kind, e.Name, e.Scope)
}

// Is makes errors.Is(err, ErrNotFound) work
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(kind, name, scope string) error {
	return &NotFoundError{Kind: kind, Name: name, Scope: scope}
}

// CommandError is returned when zfs, zpool or ssh exit unexpectedly
type CommandError struct {
	Argv     []string
	Stderr   string
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q exited with code %d", strings.Join(e.Argv, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrCommandFailed) work
func (e *CommandError) Is(target error) bool {
	return target == ErrCommandFailed
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
