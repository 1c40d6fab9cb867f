package protocol

import (
	"errors"
	"fmt"
)

// ErrFrame is the sentinel every *FrameError matches with errors.Is.
var ErrFrame = errors.New("frame error")

// ErrUnknownType is returned by Decode for a type code outside the catalog.
var ErrUnknownType = fmt.Errorf("%w: unknown message type", ErrFrame)

// FrameError reports a truncated or inconsistent frame. Need and Have are
// byte counts when the failure is a length problem, zero otherwise.
type FrameError struct {
	Reason string
	Need   int
	Have   int
}

func (e *FrameError) Error() string {
	if e.Need > 0 || e.Have > 0 {
		return fmt.Sprintf("frame error: %s (need %d bytes, have %d)", e.Reason, e.Need, e.Have)
	}
	return "frame error: " + e.Reason
}

func (e *FrameError) Is(target error) bool { return target == ErrFrame }

func frameErr(reason string, need, have int) *FrameError {
	return &FrameError{Reason: reason, Need: need, Have: have}
}
