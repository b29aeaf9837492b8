package workflow

import "github.com/osvaldoandrade/modelhub/pkg/domain"

type Event int

const (
	EventSubmit Event = iota + 1
	EventSucceed
	EventFail
	EventReset
)

func (e Event) String() string {
	switch e {
	case EventSubmit:
		return "submit"
	case EventSucceed:
		return "succeed"
	case EventFail:
		return "fail"
	case EventReset:
		return "reset"
	}
	return "unknown"
}

// Next is the job run state machine. ok is false when event is not allowed
// in state; the state is then returned unchanged.
func Next(state domain.RunState, event Event) (domain.RunState, bool) {
	if event == EventReset {
		return domain.RunIdle, true
	}
	switch state {
	case domain.RunIdle, domain.RunSucceeded, domain.RunFailed:
		if event == EventSubmit {
			return domain.RunProcessing, true
		}
	case domain.RunProcessing:
		switch event {
		case EventSucceed:
			return domain.RunSucceeded, true
		case EventFail:
			return domain.RunFailed, true
		}
	}
	return state, false
}

const (
	progressSlowdown = 90
	progressFast     = 10
	progressSlow     = 2
)

// StepProgress advances the simulated progress by one tick.
func StepProgress(p int) int {
	if p < 0 {
		p = 0
	}
	if p < progressSlowdown {
		p += progressFast
	} else {
		p += progressSlow
	}
	if p > 100 {
		return 100
	}
	return p
}
