package syncengine

import (
	"time"

	"github.com/starford/versebook/internal/models"
	"github.com/starford/versebook/internal/storage"
)

// Status is the session-level sync state.
type Status string

const (
	StatusLoading         Status = "loading"
	StatusClean           Status = "clean"
	StatusDirty           Status = "dirty"
	StatusConflictPending Status = "conflict_pending"
)

// Outcome names what a load, save, sync or resolve did.
type Outcome string

const (
	OutcomeLoaded        Outcome = "loaded"
	OutcomeSaved         Outcome = "saved"
	OutcomeAdoptedRemote Outcome = "adopted_remote"
	OutcomeConflict      Outcome = "conflict"
	OutcomeLocalNewer    Outcome = "local_newer"
	OutcomeEqual         Outcome = "equal"
	OutcomeKeptLocal     Outcome = "kept_local"
	OutcomeUsedRemote    Outcome = "used_remote"
	OutcomeFailed        Outcome = "failed"
)

// LocalIsCurrent reports whether o left the local document in place
// because it was not older than the remote one.
func (o Outcome) LocalIsCurrent() bool {
	return o == OutcomeLocalNewer || o == OutcomeEqual
}

// Choice is the user's decision for a pending conflict.
type Choice string

const (
	KeepLocal Choice = "keep_local"
	UseRemote Choice = "use_remote"
)

// Valid reports whether c is one of the two resolutions.
func (c Choice) Valid() bool { return c == KeepLocal || c == UseRemote }

// Side summarizes one version of the document in a conflict.
type Side struct {
	models.Summary
	Mutations int    `json:"mutations"`
	Revision  string `json:"revision,omitempty"`
}

// Conflict is what the caller needs to choose between local and remote.
type Conflict struct {
	Local      Side      `json:"local"`
	Remote     Side      `json:"remote"`
	DetectedAt time.Time `json:"detected_at"`
}

// Result reports a completed engine operation.
type Result struct {
	Outcome  Outcome          `json:"outcome"`
	Status   Status           `json:"status"`
	Revision string           `json:"revision,omitempty"`
	Conflict *Conflict        `json:"conflict,omitempty"`
	Receipt  *storage.Receipt `json:"receipt,omitempty"`
}

// Info is a point-in-time view of the engine state.
type Info struct {
	Status       Status    `json:"status"`
	Dirty        bool      `json:"dirty"`
	Mutations    int       `json:"mutations"`
	LastModified time.Time `json:"last_modified"`
	ChangedAt    time.Time `json:"changed_at,omitzero"`
	Revision     string    `json:"revision,omitempty"`
	Busy         bool      `json:"busy"`
	Conflict     *Conflict `json:"conflict,omitempty"`
}

// EventKind classifies engine notifications.
type EventKind string

const (
	EventLoaded   EventKind = "loaded"
	EventMutated  EventKind = "mutated"
	EventSaved    EventKind = "saved"
	EventSynced   EventKind = "synced"
	EventConflict EventKind = "conflict"
	EventResolved EventKind = "resolved"
	EventFailed   EventKind = "failed"
)

// Event is delivered to listeners after the engine lock is released, so
// listeners may call back into the engine.
type Event struct {
	Kind     EventKind
	Op       string
	Outcome  Outcome
	Status   Status
	Revision string
	Conflict *Conflict
	Err      error
	At       time.Time
}

// Listener receives engine events synchronously.
type Listener func(Event)
