package lordn

// State is the position of a pipeline run in its state machine.
type State int

const (
	// StateIdle is the state before any side effect.
	StateIdle State = iota
	// StateLeasing drains the partition into memory.
	StateLeasing
	// StateAssembling builds the report.
	StateAssembling
	// StateUploading submits the report to MarksDB.
	StateUploading
	// StateCleaningUp deletes the uploaded records.
	StateCleaningUp
	// StateSchedulingVerification enqueues the delayed verify task.
	StateSchedulingVerification
	// StateDone is the successful terminal state, including the nothing-to-upload case.
	StateDone
	// StateAborted is the failed terminal state, reached from leasing or uploading.
	StateAborted
)

var stateNames = [...]string{
	StateIdle:                   "idle",
	StateLeasing:                "leasing",
	StateAssembling:             "assembling",
	StateUploading:              "uploading",
	StateCleaningUp:             "cleaning_up",
	StateSchedulingVerification: "scheduling_verification",
	StateDone:                   "done",
	StateAborted:                "aborted",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}

	return stateNames[s]
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}
