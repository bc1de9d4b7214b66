package engine

import (
	"errors"
	"fmt"

	"peermarket/internal/repository"
)

// MissingDependency the action's causal prerequisite is not present yet.
// Transient: the prerequisite message may still be in flight, so the
// message is parked WAITING and retried.
type MissingDependency struct {
	Reason string
}

// Error implement error interface
func (e *MissingDependency) Error() string {
	return fmt.Sprintf("missing dependency: %s", e.Reason)
}

// ProtocolViolation the action is structurally valid but causally
// impossible. Fatal: the message is FAILED and never retried.
type ProtocolViolation struct {
	Reason string
}

// Error implement error interface
func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Reason)
}

func missingf(format string, args ...interface{}) *MissingDependency {
	return &MissingDependency{Reason: fmt.Sprintf(format, args...)}
}

func violationf(format string, args ...interface{}) *ProtocolViolation {
	return &ProtocolViolation{Reason: fmt.Sprintf(format, args...)}
}

// IsMissingDependency reports whether err is a transient dependency gap
func IsMissingDependency(err error) bool {
	var md *MissingDependency
	return errors.As(err, &md)
}

// IsProtocolViolation reports whether err is a fatal causal impossibility
func IsProtocolViolation(err error) bool {
	var pv *ProtocolViolation
	return errors.As(err, &pv)
}

// IsStorageConflict reports whether err is a lost optimistic-write race
func IsStorageConflict(err error) bool {
	return errors.Is(err, repository.ErrStorageConflict)
}
