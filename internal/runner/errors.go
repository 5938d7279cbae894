package runner

import "fmt"

// Kind classifies a failed run by the dependency that caused it.
type Kind string

const (
	KindInput      Kind = "input"
	KindExtraction Kind = "extraction"
	KindStore      Kind = "store"
	KindProvider   Kind = "provider"
	KindDelivery   Kind = "delivery"
)

// Stage is a step of the pipeline.
type Stage string

const (
	StageReceived        Stage = "received"
	StageExtracting      Stage = "extracting"
	StageDeduplicated    Stage = "deduplicated"
	StageNoveltyFiltered Stage = "novelty_filtered"
	StageSummarized      Stage = "summarized"
	StageDelivered       Stage = "delivered"
	StageShortCircuited  Stage = "short_circuited"
)

// Error is the reason a run failed and the stage it failed in.
type Error struct {
	Kind  Kind
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("runner: %s error at %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
