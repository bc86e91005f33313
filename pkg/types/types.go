package types

import "time"

// TaskMode distinguishes tasks that only read a repository from tasks that
// mutate a branch and therefore participate in the branch-lock queue.
type TaskMode string

const (
	TaskModeRead  TaskMode = "read"
	TaskModeWrite TaskMode = "write"
)

// TaskStatus is the task lifecycle tag. The active/terminal partition is a
// derived predicate (IsActive/IsTerminal); callers must never special-case a
// status value without going through it.
type TaskStatus string

const (
	TaskStatusQueued            TaskStatus = "queued"
	TaskStatusPreparing         TaskStatus = "preparing"
	TaskStatusRunning           TaskStatus = "running"
	TaskStatusResuming          TaskStatus = "resuming"
	TaskStatusRevivingForAttach TaskStatus = "reviving_for_attach"
	TaskStatusPausedForAttach   TaskStatus = "paused_for_attach"
	TaskStatusResumeFailed      TaskStatus = "resume_failed"

	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusTimeout   TaskStatus = "timeout"
	TaskStatusCancelled TaskStatus = "cancelled"
	TaskStatusCleaned   TaskStatus = "cleaned"
)

var activeStatuses = map[TaskStatus]bool{
	TaskStatusQueued:            true,
	TaskStatusPreparing:         true,
	TaskStatusRunning:           true,
	TaskStatusResuming:          true,
	TaskStatusRevivingForAttach: true,
	TaskStatusPausedForAttach:   true,
	TaskStatusResumeFailed:      true,
}

var terminalStatuses = map[TaskStatus]bool{
	TaskStatusCompleted: true,
	TaskStatusFailed:    true,
	TaskStatusTimeout:   true,
	TaskStatusCancelled: true,
	TaskStatusCleaned:   true,
}

// IsActive reports whether a task in this status counts toward "the daemon
// is busy" and toward the branch-lock queue.
func (s TaskStatus) IsActive() bool {
	return activeStatuses[s]
}

// IsTerminal reports whether this status is a terminal one. A task in a
// terminal status never transitions to a non-terminal one.
func (s TaskStatus) IsTerminal() bool {
	return terminalStatuses[s]
}

// reapingStatuses is the set the daemon loop probes liveness for on every
// tick (§4.H step 2).
var reapingStatuses = map[TaskStatus]bool{
	TaskStatusPreparing:         true,
	TaskStatusRunning:           true,
	TaskStatusResuming:          true,
	TaskStatusRevivingForAttach: true,
}

// NeedsLivenessProbe reports whether the daemon loop should check this
// task's worker pid on this tick.
func (s TaskStatus) NeedsLivenessProbe() bool {
	return reapingStatuses[s]
}

// Capabilities are authoritative metadata about what a task's adapter
// supports; they gate which attach/resume commands are offered.
type Capabilities struct {
	AttachHandoff     bool `json:"attachHandoff"`
	ResumeToken       bool `json:"resumeToken"`
	Transcript        bool `json:"transcript"`
	FailedSnapshot    bool `json:"failedSnapshot"`
	CheckpointRestore bool `json:"checkpointRestore"`
}

// AttachState is present on a Task only while an attach session exists.
type AttachState struct {
	State           string     `json:"state"`
	LockOwner       string     `json:"lockOwner"`
	SessionHandle   string     `json:"sessionHandle"`
	CheckpointID    string     `json:"checkpointId,omitempty"`
	TokenExpiresAt  *time.Time `json:"tokenExpiresAt,omitempty"`
}

// QueueState holds the branch-lock queue's derived fields. BlockedByTaskID
// is recomputed by jobs.ReconcileBranchQueue on every index write; callers never
// set it directly.
type QueueState struct {
	LockKey         string `json:"lockKey"`
	BlockedByTaskID string `json:"blockedByTaskId,omitempty"`
}

// CheckpointRef is an opaque, adapter-defined handle produced by
// Adapter.Checkpoint and consumed by Adapter.Restore.
type CheckpointRef struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"createdAt"`
	Hints     map[string]string `json:"hints,omitempty"`
}

// RunAttemptRecord logs one worker start attempt; LocalAdapter.Start
// appends one to Runtime.RunLog each time it spawns a worker.
type RunAttemptRecord struct {
	Attempt    int        `json:"attempt"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	ExitCode   *int       `json:"exitCode,omitempty"`
}

// RuntimeState is exclusively written by the daemon that observed the
// worker for this task.
type RuntimeState struct {
	WorkerPID        int                `json:"workerPid,omitempty"`
	WorktreePath     string             `json:"worktreePath,omitempty"`
	PreparedAt       *time.Time         `json:"preparedAt,omitempty"`
	StartedAt        *time.Time         `json:"startedAt,omitempty"`
	FinishedAt       *time.Time         `json:"finishedAt,omitempty"`
	CleanedAt        *time.Time         `json:"cleanedAt,omitempty"`
	TimeoutAt        *time.Time         `json:"timeoutAt,omitempty"`
	RetainedForDebug bool               `json:"retainedForDebug"`
	LastExitCode     *int               `json:"lastExitCode,omitempty"`
	Checkpoint       *CheckpointRef     `json:"checkpoint,omitempty"`
	CheckpointHistory []CheckpointRef   `json:"checkpointHistory,omitempty"`
	RunAttempt       int                `json:"runAttempt,omitempty"`
	RunLog           []RunAttemptRecord `json:"runLog,omitempty"`
}

// Task is one unit of scheduled work against a repository.
type Task struct {
	ID           string       `json:"id"`
	DisplayID    int          `json:"displayId"`
	Title        string       `json:"title"`
	Mode         TaskMode     `json:"mode"`
	Status       TaskStatus   `json:"status"`
	Branch       string       `json:"branch,omitempty"`
	Adapter      string       `json:"adapter"`
	Capabilities Capabilities `json:"capabilities"`
	Attach       *AttachState `json:"attach,omitempty"`
	Queue        QueueState   `json:"queue"`
	Runtime      RuntimeState `json:"runtime"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// LockKey returns the task's effective branch-lock group, defaulting to the
// branch when Queue.LockKey is unset.
func (t *Task) LockKey() string {
	if t.Queue.LockKey != "" {
		return t.Queue.LockKey
	}
	return t.Branch
}

// TaskIndex is the per-repository, versioned collection of tasks persisted
// at jobs/index.json.
type TaskIndex struct {
	Version       int     `json:"version"`
	NextDisplayID int     `json:"nextDisplayId"`
	Tasks         []*Task `json:"tasks"`
}

// CurrentIndexVersion is the schema version new and migrated indexes are
// written at.
const CurrentIndexVersion = 3

// TaskEvent is one immutable entry in a task's event log and in the global
// event stream. Events are never mutated or deleted once appended.
type TaskEvent struct {
	ID      string    `json:"id"`
	TaskID  string    `json:"taskId"`
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Message string    `json:"message,omitempty"`
}

// DaemonStatus is the lifecycle tag of a running daemon process.
type DaemonStatus string

const (
	DaemonStatusStarting DaemonStatus = "starting"
	DaemonStatusRunning  DaemonStatus = "running"
	DaemonStatusStopping DaemonStatus = "stopping"
)

// DaemonState is runtime-only, rewritten atomically on every loop tick at
// jobs/runtime/daemon.json.
type DaemonState struct {
	PID          int          `json:"pid"`
	ID           string       `json:"id"`
	StartedAt    time.Time    `json:"startedAt"`
	HeartbeatAt  time.Time    `json:"heartbeatAt"`
	IdleSince    *time.Time   `json:"idleSince,omitempty"`
	Status       DaemonStatus `json:"status"`
}

// ConsumerCursor is a per-(repo, consumerId) line offset into the global
// event stream.
type ConsumerCursor struct {
	Line int `json:"line"`
}

// ProjectEntry is one registered (repo, branch) stack in the GlobalRegistry.
type ProjectEntry struct {
	Repo   string `json:"repo"`
	Branch string `json:"branch"`
	Ports  []int  `json:"ports"`
}

// HostServiceEntry is one registered host-local auxiliary process.
type HostServiceEntry struct {
	Repo        string `json:"repo"`
	Branch      string `json:"branch"`
	LogicalPort int    `json:"logicalPort"`
	ActualPort  int    `json:"actualPort"`
	PID         int    `json:"pid"`
	ConfigFile  string `json:"configFile"`
}

// GlobalRegistry is the single host-wide record of active stacks and
// host-local auxiliary processes, persisted at <home>/.port/registry.json.
type GlobalRegistry struct {
	Projects     []ProjectEntry     `json:"projects"`
	HostServices []HostServiceEntry `json:"hostServices"`
}
