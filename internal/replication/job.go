// Package replication defines the boundary to the external continuous
// replication engine used by the cutover migration path, and the single-use
// job descriptor that correlates its output back to a migration attempt.
package replication

import (
	"context"

	"github.com/google/uuid"
)

// Job correlates one replication run with its source VM and destination
// storage. It is transient: built for a single migration and never reused.
// The engine tags the VM it creates with all three identifiers, which is how
// the cutover orchestrator finds the result.
type Job struct {
	ID         string
	SourceVmID string
	StorageID  string
}

func NewJob(sourceVmID, storageID string) Job {
	return Job{
		ID:         uuid.NewString(),
		SourceVmID: sourceVmID,
		StorageID:  storageID,
	}
}

// Tags returns the tag set the engine stamps on the replicated VM.
func (j Job) Tags() []string {
	return []string{
		"job=" + j.ID,
		"sr=" + j.StorageID,
		"vm=" + j.SourceVmID,
	}
}

// Spec is the job specification handed to the engine: a delta-mode,
// retention-1, one-shot replication of the source VM onto the destination
// storage.
type Spec struct {
	Job
	Mode      string
	Retention int
}

func (j Job) Spec() Spec {
	return Spec{
		Job:       j,
		Mode:      "delta",
		Retention: 1,
	}
}

// Engine runs one replication pass and returns once the copy is durable.
// Running the same job id again is recognized by the engine, which then
// transfers only the changes since the previous pass.
type Engine interface {
	Run(ctx context.Context, spec Spec) error
}
