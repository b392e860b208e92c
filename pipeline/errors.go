package pipeline

import "errors"

var (
	// ErrValidation means the caller's input was rejected before any write.
	ErrValidation = errors.New("invalid input")

	// ErrProofNotFound means the proof id does not resolve to a stored record.
	ErrProofNotFound = errors.New("proof not found")

	// ErrComplaintNotFound means the proof's complaint reference does not
	// resolve to any stored complaint at verification time.
	ErrComplaintNotFound = errors.New("complaint not found")

	// ErrAuditNotFound means the audit id does not resolve to a stored report.
	ErrAuditNotFound = errors.New("audit record not found")
)
