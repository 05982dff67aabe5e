package types

import "time"

// ReplyEnvelope routes an eventual subtask outcome back to the node that
// offered the work. It carries no semantics of its own; the Task Computer
// only ever hands it back unchanged to the task server.
type ReplyEnvelope struct {
	ReturnAddress string
	ReturnPort    int
	KeyID         string
	TaskOwner     string
}

// SubtaskDescriptor is the immutable unit of work accepted from a task
// server offer. Once installed in the registry none of its fields may be
// mutated; a new descriptor is created for every offer.
type SubtaskDescriptor struct {
	SubtaskID        string
	TaskID           string
	SourceCode       []byte         // opaque payload blob, never interpreted by the core
	ExtraData        map[string]any // opaque payload parameters
	ShortDescription string
	WorkingDirectory string // relative path within the resource dir
	Deadline         time.Time
	DockerImages     []string // possibly empty; non-empty selects the container worker
	Envelope         ReplyEnvelope
}

// TaskHeader is the enclosing task's metadata as known by the task keeper.
type TaskHeader struct {
	TaskID         string
	Deadline       time.Time
	SubtaskTimeout time.Duration // the payment ceiling
}

// ResourceDelta is the transport-layer metadata describing how a resource
// bundle should be unpacked onto local disk. Its shape is owned by the
// resource manager; the Task Computer only forwards it to UnpackDelta.
type ResourceDelta struct {
	TaskID string
	Data   any
}

// Progress is a read-only snapshot of one live worker, exposed through
// GetProgresses and the admin API.
type Progress struct {
	SubtaskID        string
	ShortDescription string
	Fraction         float64 // in [0,1]
	StartedAt        time.Time
}

// Result is the worker-reported outcome of executing a subtask's payload.
// A successful computation populates Data/ResultType; anything else is
// classified as an error by the outcome dispatcher.
type Result struct {
	Data       any
	ResultType string
	Stdout     string
	Stderr     string
}
