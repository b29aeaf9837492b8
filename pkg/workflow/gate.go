package workflow

import "github.com/osvaldoandrade/modelhub/pkg/domain"

type GateReason string

const (
	GateOpen       GateReason = ""
	GateProcessing GateReason = "processing"
	GateCredits    GateReason = "insufficient_credits"
	GateMissing    GateReason = "missing_fields"
	GateDescriptor GateReason = "no_descriptor"
)

const signInToContinue = "Sign in to process images"

// GateResult is the enabled state of the submit control and what to show
// next to it.
type GateResult struct {
	Enabled   bool       `json:"enabled"`
	Reason    GateReason `json:"reason,omitempty"`
	Message   string     `json:"message,omitempty"`
	Missing   []string   `json:"missing,omitempty"`
	NeedsAuth bool       `json:"needsAuth"`
	Cost      int        `json:"cost"`
}

// Gate computes whether submit is enabled. A missing session does not
// disable the control: the click itself reports domain.ErrAuthRequired.
// The credit check applies only when the balance is known.
func Gate(m *domain.Model, missing []string, s *domain.Session, state domain.RunState) GateResult {
	if m == nil {
		return GateResult{Reason: GateDescriptor, Message: "Model is not loaded", NeedsAuth: s == nil}
	}
	g := GateResult{
		Enabled:   true,
		Missing:   append([]string(nil), missing...),
		NeedsAuth: s == nil,
		Cost:      m.CreditCost,
	}
	if s == nil {
		g.Message = signInToContinue
	}

	if s != nil && s.Credits() < m.CreditCost {
		g.Enabled = false
		g.Reason = GateCredits
		g.Message = creditError(m, s).Error()
	}
	if len(missing) > 0 {
		g.Enabled = false
		if g.Reason == GateOpen {
			g.Reason = GateMissing
			g.Message = (&domain.ValidationError{Missing: missing}).Error()
		}
	}
	if state == domain.RunProcessing {
		g.Enabled = false
		g.Reason = GateProcessing
		g.Message = "Processing..."
	}
	return g
}

func creditError(m *domain.Model, s *domain.Session) *domain.CreditError {
	return &domain.CreditError{Cost: m.CreditCost, Credits: s.Credits()}
}
