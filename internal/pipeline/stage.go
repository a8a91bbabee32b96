package pipeline

import "fmt"

// Stage is a step of the run state machine. Stages are strictly sequential.
type Stage int

const (
	StageStarted Stage = iota
	StageLoaded
	StageFiltered
	StageTransformed
	StageDeduplicated
	StageValidated
	StagePersisted
)

var stageNames = [...]string{
	StageStarted:      "STARTED",
	StageLoaded:       "LOADED",
	StageFiltered:     "FILTERED",
	StageTransformed:  "TRANSFORMED",
	StageDeduplicated: "DEDUPLICATED",
	StageValidated:    "VALIDATED",
	StagePersisted:    "PERSISTED",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// machine enforces stage order.
type machine struct {
	stage Stage
}

func (m *machine) advance(to Stage) error {
	if to != m.stage+1 {
		return fmt.Errorf("illegal stage transition %s -> %s", m.stage, to)
	}
	m.stage = to
	return nil
}
