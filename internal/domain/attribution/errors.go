package attribution

import "errors"

var (
	// ErrUnknownModel indicates an unrecognized attribution model name.
	ErrUnknownModel = errors.New("unknown attribution model")
	// ErrNoScorer indicates the data-driven model was requested without a
	// scorer.
	ErrNoScorer = errors.New("data-driven model requires a scorer")
)
