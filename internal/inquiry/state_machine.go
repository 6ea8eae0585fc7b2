package inquiry

import (
	"errors"

	"bondpipe/internal/schema"
)

var (
	ErrUnknownInquiry    = errors.New("inquiry not found")
	ErrInvalidTransition = errors.New("invalid inquiry state transition")
	ErrEmptyInquiryID    = errors.New("empty inquiry id")
)

// stage orders the inquiry states. Transitions never move to a lower stage.
func stage(s schema.InquiryState) int {
	switch s {
	case schema.InquiryStateReceived:
		return 0
	case schema.InquiryStateQuoted:
		return 1
	default:
		return 2
	}
}

// checkTransition validates moving an inquiry from its stored state to next.
// Nothing leaves a terminal state.
func checkTransition(from, next schema.InquiryState) error {
	if !next.IsAvailable() {
		return ErrInvalidTransition
	}
	if from.IsTerminal() {
		return ErrInvalidTransition
	}
	if stage(next) < stage(from) {
		return ErrInvalidTransition
	}
	return nil
}
