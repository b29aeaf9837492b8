package present

import "github.com/osvaldoandrade/modelhub/pkg/domain"

type Kind string

const (
	KindPlaceholder Kind = "placeholder"
	KindProgress    Kind = "progress"
	KindResult      Kind = "result"
	KindError       Kind = "error"
)

const (
	PlaceholderText = "Processed image will appear here"
	ProcessingText  = "Processing..."
	genericError    = "Error processing image"
)

// Frame is what the result area shows for one job run state.
type Frame struct {
	State    domain.RunState `json:"state"`
	Kind     Kind            `json:"kind"`
	Title    string          `json:"title,omitempty"`
	Preview  string          `json:"preview,omitempty"`
	Text     string          `json:"text,omitempty"`
	Progress int             `json:"progress"`
	Result   string          `json:"result,omitempty"`
	Download bool            `json:"download"`
	Chain    bool            `json:"chain"`
	Message  string          `json:"message,omitempty"`
	Details  string          `json:"details,omitempty"`
}

// Present maps a run onto a frame. It has no side effects.
func Present(m *domain.Model, run domain.JobRun) Frame {
	f := Frame{State: run.State}
	if m != nil {
		f.Title = m.Name
	}
	switch run.State {
	case domain.RunProcessing:
		f.Kind = KindProgress
		f.Text = ProcessingText
		f.Progress = clamp(run.Progress)
	case domain.RunSucceeded:
		if run.Result == nil || run.Result.URL == "" {
			f.Kind = KindError
			f.Message = genericError
			return f
		}
		f.Kind = KindResult
		f.Progress = 100
		f.Result = run.Result.URL
		f.Download = true
		f.Chain = true
	case domain.RunFailed:
		f.Kind = KindError
		f.Message = genericError
		if run.Error != nil {
			if run.Error.Message != "" {
				f.Message = run.Error.Message
			}
			f.Details = run.Error.Details
		}
	default:
		f.Kind = KindPlaceholder
		if m != nil && m.MainImage != "" {
			f.Preview = m.MainImage
		} else {
			f.Text = PlaceholderText
		}
	}
	return f
}

func clamp(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
