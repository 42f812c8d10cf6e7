package migration

import "errors"

var (
	// ErrCannotImportRunningSource is returned when the source is powered on
	// but the caller did not allow stopping it for a cold import. Nothing has
	// been mutated when it is returned.
	ErrCannotImportRunningSource = errors.New("source vm is running and stopping it was not allowed")

	// ErrMissingDestinationDisk is returned when a disk-node reaches its
	// import step without a destination disk to write into.
	ErrMissingDestinationDisk = errors.New("disk-node has no destination disk")

	// ErrTargetNotFound and ErrAmbiguousTarget are cutover discovery
	// failures: the tag query for the replicated VM matched zero or more
	// than one candidate. Both leave the destination untouched.
	ErrTargetNotFound  = errors.New("no destination vm matches the replication job tags")
	ErrAmbiguousTarget = errors.New("multiple destination vms match the replication job tags")
)
