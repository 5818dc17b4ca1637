package monitor

// Status is the lifecycle state of a monitor.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusMonitoring   Status = "monitoring"
	StatusApproaching  Status = "approaching"
	StatusImminent     Status = "imminent"
	StatusTriggered    Status = "triggered"
	StatusAborted      Status = "aborted"
	StatusCompleted    Status = "completed"
	StatusStopped      Status = "stopped"
	StatusError        Status = "error"
	StatusDeleted      Status = "deleted"
)

// Terminal reports whether no further cycles may run once s is entered.
func (s Status) Terminal() bool {
	switch s {
	case StatusTriggered, StatusAborted, StatusCompleted, StatusDeleted:
		return true
	}
	return false
}

// Active reports whether s is one of the polling states. A monitor may
// only be running while its status is active.
func (s Status) Active() bool {
	switch s {
	case StatusMonitoring, StatusApproaching, StatusImminent:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusInitializing, StatusMonitoring, StatusApproaching, StatusImminent,
		StatusTriggered, StatusAborted, StatusCompleted, StatusStopped,
		StatusError, StatusDeleted:
		return true
	}
	return false
}

// Input is an event fed to the lifecycle state machine.
type Input int

const (
	InputParseSucceeded Input = iota
	InputParseFailed
	InputConcluded
	InputSoft
	InputHard
	InputTrigger
	InputAborted
	InputCycleFailed
	InputStop
	InputStart
	InputDelete
)

var inputNames = map[Input]string{
	InputParseSucceeded: "parse_succeeded",
	InputParseFailed:    "parse_failed",
	InputConcluded:      "concluded",
	InputSoft:           "soft_alert",
	InputHard:           "hard_alert",
	InputTrigger:        "trigger",
	InputAborted:        "aborted",
	InputCycleFailed:    "cycle_failed",
	InputStop:           "stop",
	InputStart:          "start",
	InputDelete:         "delete",
}

func (in Input) String() string {
	if s, ok := inputNames[in]; ok {
		return s
	}
	return "unknown"
}

// InputForKind returns the lifecycle input for an evaluator decision.
// INFO alerts drive no transition.
func InputForKind(k AlertKind) (Input, bool) {
	switch k {
	case KindSoft:
		return InputSoft, true
	case KindHard:
		return InputHard, true
	case KindTrigger:
		return InputTrigger, true
	case KindAborted:
		return InputAborted, true
	}
	return 0, false
}

// Next returns the status reached from `from` on input `in`. ok is false
// when the table has no entry for the pair; the status is then unchanged.
//
// Next does not check rule presence for InputStart; see CanStart.
func Next(from Status, in Input) (to Status, ok bool) {
	if in == InputDelete {
		return StatusDeleted, true
	}
	if from.Terminal() {
		return from, false
	}

	switch in {
	case InputParseSucceeded:
		if from == StatusInitializing {
			return StatusMonitoring, true
		}
	case InputParseFailed:
		if from == StatusInitializing {
			return StatusError, true
		}
	case InputConcluded:
		if from.Active() {
			return StatusCompleted, true
		}
	case InputTrigger:
		if from.Active() {
			return StatusTriggered, true
		}
	case InputAborted:
		if from.Active() {
			return StatusAborted, true
		}
	case InputSoft:
		if from == StatusMonitoring || from == StatusImminent {
			return StatusApproaching, true
		}
	case InputHard:
		if from == StatusMonitoring || from == StatusApproaching {
			return StatusImminent, true
		}
	case InputCycleFailed:
		return StatusError, true
	case InputStop:
		if from.Active() || from == StatusInitializing {
			return StatusStopped, true
		}
	case InputStart:
		if from == StatusStopped || from == StatusError {
			return StatusMonitoring, true
		}
	}
	return from, false
}

// CanStart reports whether a start request is legal for r.
func CanStart(r Record) bool {
	if !r.HasRules() {
		return false
	}
	_, ok := Next(r.Status, InputStart)
	return ok
}

// ShouldResume reports whether a record restored at boot was in flight and
// must be restarted.
func ShouldResume(r Record) bool {
	return r.Running && r.Status.Active()
}

// Repair fixes crash-torn state: an active monitor whose last recorded
// alert is terminal or a cycle failure gets the status that alert implies. It returns the
// repaired status and whether it changed.
func Repair(m *Monitor) (Status, bool) {
	if !m.Status.Active() {
		return m.Status, false
	}
	last, ok := m.LastAlert()
	if !ok {
		return m.Status, false
	}
	var in Input
	switch {
	case last.Kind == KindTrigger:
		in = InputTrigger
	case last.Kind == KindAborted:
		in = InputAborted
	case last.IsConcluded():
		in = InputConcluded
	case last.IsFailure():
		in = InputCycleFailed
	default:
		return m.Status, false
	}
	to, _ := Next(m.Status, in)
	m.Status = to
	m.Running = false
	return to, true
}
