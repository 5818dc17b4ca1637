package monitor

import (
	"encoding/json"
	"testing"
	"time"
)

var allStatuses = []Status{
	StatusInitializing, StatusMonitoring, StatusApproaching, StatusImminent,
	StatusTriggered, StatusAborted, StatusCompleted, StatusStopped,
	StatusError, StatusDeleted,
}

func TestNext_Table(t *testing.T) {
	cases := []struct {
		from Status
		in   Input
		to   Status
		ok   bool
	}{
		{StatusInitializing, InputParseSucceeded, StatusMonitoring, true},
		{StatusInitializing, InputParseFailed, StatusError, true},
		{StatusMonitoring, InputParseSucceeded, StatusMonitoring, false},

		{StatusMonitoring, InputConcluded, StatusCompleted, true},
		{StatusApproaching, InputConcluded, StatusCompleted, true},
		{StatusImminent, InputConcluded, StatusCompleted, true},
		{StatusStopped, InputConcluded, StatusStopped, false},

		{StatusMonitoring, InputTrigger, StatusTriggered, true},
		{StatusImminent, InputTrigger, StatusTriggered, true},
		{StatusApproaching, InputAborted, StatusAborted, true},

		{StatusMonitoring, InputSoft, StatusApproaching, true},
		{StatusImminent, InputSoft, StatusApproaching, true},
		{StatusApproaching, InputSoft, StatusApproaching, false},

		{StatusMonitoring, InputHard, StatusImminent, true},
		{StatusApproaching, InputHard, StatusImminent, true},
		{StatusImminent, InputHard, StatusImminent, false},

		{StatusMonitoring, InputCycleFailed, StatusError, true},
		{StatusInitializing, InputCycleFailed, StatusError, true},
		{StatusTriggered, InputCycleFailed, StatusTriggered, false},

		{StatusMonitoring, InputStop, StatusStopped, true},
		{StatusImminent, InputStop, StatusStopped, true},
		{StatusInitializing, InputStop, StatusStopped, true},
		{StatusCompleted, InputStop, StatusCompleted, false},
		{StatusStopped, InputStop, StatusStopped, false},

		{StatusStopped, InputStart, StatusMonitoring, true},
		{StatusError, InputStart, StatusMonitoring, true},
		{StatusInitializing, InputStart, StatusInitializing, false},
		{StatusMonitoring, InputStart, StatusMonitoring, false},
		{StatusTriggered, InputStart, StatusTriggered, false},
	}
	for _, c := range cases {
		to, ok := Next(c.from, c.in)
		if to != c.to || ok != c.ok {
			t.Errorf("Next(%s, %s) = (%s, %v), want (%s, %v)", c.from, c.in, to, ok, c.to, c.ok)
		}
	}
}

func TestNext_DeleteFromAnyStatus(t *testing.T) {
	for _, s := range allStatuses {
		to, ok := Next(s, InputDelete)
		if !ok || to != StatusDeleted {
			t.Errorf("Next(%s, delete) = (%s, %v), want (deleted, true)", s, to, ok)
		}
	}
}

func TestNext_TerminalStatesAreSticky(t *testing.T) {
	inputs := []Input{
		InputParseSucceeded, InputParseFailed, InputConcluded, InputSoft, InputHard,
		InputTrigger, InputAborted, InputCycleFailed, InputStop, InputStart,
	}
	for _, s := range allStatuses {
		if !s.Terminal() {
			continue
		}
		for _, in := range inputs {
			if to, ok := Next(s, in); ok || to != s {
				t.Errorf("Next(%s, %s) = (%s, %v), want no transition", s, in, to, ok)
			}
		}
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range allStatuses {
		if !s.Valid() {
			t.Errorf("%s: Valid() = false", s)
		}
		if s.Active() && s.Terminal() {
			t.Errorf("%s: both active and terminal", s)
		}
	}
	if Status("bogus").Valid() {
		t.Error("bogus status reported valid")
	}
}

func TestCanStart(t *testing.T) {
	rules := json.RawMessage(`{"entity":"batter"}`)
	cases := []struct {
		status Status
		rules  json.RawMessage
		want   bool
	}{
		{StatusStopped, rules, true},
		{StatusError, rules, true},
		{StatusError, nil, false},
		{StatusStopped, nil, false},
		{StatusInitializing, nil, false},
		{StatusMonitoring, rules, false},
		{StatusCompleted, rules, false},
	}
	for _, c := range cases {
		if got := CanStart(Record{Status: c.status, Rules: c.rules}); got != c.want {
			t.Errorf("CanStart(%s, rules=%v) = %v, want %v", c.status, c.rules != nil, got, c.want)
		}
	}
}

func TestShouldResume(t *testing.T) {
	cases := []struct {
		r    Record
		want bool
	}{
		{Record{Status: StatusApproaching, Running: true}, true},
		{Record{Status: StatusMonitoring, Running: true}, true},
		{Record{Status: StatusMonitoring, Running: false}, false},
		{Record{Status: StatusStopped, Running: true}, false},
		{Record{Status: StatusError, Running: true}, false},
		{Record{Status: StatusTriggered, Running: true}, false},
	}
	for _, c := range cases {
		if got := ShouldResume(c.r); got != c.want {
			t.Errorf("ShouldResume(%s, running=%v) = %v, want %v", c.r.Status, c.r.Running, got, c.want)
		}
	}
}

func TestRepair_TerminalLastAlert(t *testing.T) {
	now := time.Now()
	m := &Monitor{
		Record: Record{Status: StatusImminent, Running: true},
		Alerts: []Alert{
			{Kind: KindHard, Message: "one away", Timestamp: now},
			{Kind: KindTrigger, Message: "century", Timestamp: now},
		},
	}
	to, changed := Repair(m)
	if !changed || to != StatusTriggered {
		t.Fatalf("Repair = (%s, %v), want (triggered, true)", to, changed)
	}
	if m.Running {
		t.Error("Running: got true after repair, want false")
	}
}

func TestRepair_ConcludedInfo(t *testing.T) {
	m := &Monitor{
		Record: Record{Status: StatusMonitoring, Running: true},
		Alerts: []Alert{ConcludedAlert(time.Now())},
	}
	if to, changed := Repair(m); !changed || to != StatusCompleted {
		t.Fatalf("Repair = (%s, %v), want (completed, true)", to, changed)
	}
}

func TestRepair_FailureInfo(t *testing.T) {
	m := &Monitor{
		Record: Record{Status: StatusImminent, Running: true},
		Alerts: []Alert{
			{Kind: KindHard, Message: "one away"},
			FailureAlert("interpreter", "Evaluation failed: boom", time.Now()),
		},
	}
	to, changed := Repair(m)
	if !changed || to != StatusError {
		t.Fatalf("Repair = (%s, %v), want (error, true)", to, changed)
	}
	if m.Running {
		t.Error("Running: got true after repair, want false")
	}
	if ShouldResume(m.Record) {
		t.Error("ShouldResume: got true for a repaired failure, want false")
	}
}

func TestRepair_NoChange(t *testing.T) {
	m := &Monitor{
		Record: Record{Status: StatusApproaching, Running: true},
		Alerts: []Alert{{Kind: KindSoft, Message: "five away"}},
	}
	if to, changed := Repair(m); changed || to != StatusApproaching {
		t.Fatalf("Repair = (%s, %v), want (approaching, false)", to, changed)
	}
	if !m.Running {
		t.Error("Running: got false, want true")
	}

	// An INFO alert from the interpreter itself is not a failure.
	info := &Monitor{
		Record: Record{Status: StatusMonitoring, Running: true},
		Alerts: []Alert{{Kind: KindInfo, EntityType: "batter", Message: "fifty up"}},
	}
	if _, changed := Repair(info); changed {
		t.Error("Repair changed a monitor whose last alert is a plain INFO")
	}

	stopped := &Monitor{
		Record: Record{Status: StatusStopped},
		Alerts: []Alert{{Kind: KindTrigger}},
	}
	if _, changed := Repair(stopped); changed {
		t.Error("Repair changed a stopped monitor")
	}
}
