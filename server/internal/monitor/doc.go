// Package monitor defines the Monitor and Alert records and the lifecycle
// state machine that governs a monitor's Status.
//
// A Monitor is split into the persisted Record (one document per monitor)
// and its append-only Alerts sequence, which backends store separately.
//
// Next(from, input) is the single source of truth for legal transitions:
//
//	INITIALIZING --parse ok-->      MONITORING
//	INITIALIZING --parse failed-->  ERROR
//	active       --concluded-->     COMPLETED
//	active       --TRIGGER-->       TRIGGERED
//	active       --ABORTED-->       ABORTED
//	MONITORING/IMMINENT  --SOFT-->  APPROACHING
//	MONITORING/APPROACHING --HARD-> IMMINENT
//	non-terminal --cycle error-->   ERROR
//	active/INITIALIZING --stop-->   STOPPED
//	STOPPED/ERROR --start-->        MONITORING (rules required, checked by caller)
//	any          --delete-->        DELETED
//
// "active" means MONITORING, APPROACHING or IMMINENT.
package monitor
