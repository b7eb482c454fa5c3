package paygate

import (
	"errors"
	"time"

	"github.com/smallbiznis/facesaju/internal/record/domain"
)

var (
	ErrInvalidTransition = errors.New("invalid_gate_transition")
	ErrTeaserRunning     = errors.New("teaser_running")
)

type Event string

const (
	EventStartTeaser    Event = "start_teaser"
	EventOpenPaywall    Event = "open_paywall"
	EventClose          Event = "close"
	EventRetentionOffer Event = "retention_offer"
	EventWidgetFailed   Event = "widget_failed"
	EventWidgetReady    Event = "widget_ready"
	EventBeginCheckout  Event = "begin_checkout"
	EventPaymentFailed  Event = "payment_failed"
	EventPaid           Event = "paid"
)

type Rendering string

const (
	RenderFull   Rendering = "full"
	RenderMasked Rendering = "masked"
	RenderUpsell Rendering = "upsell"
)

// Timing is the per line pacing of the gate.
type Timing struct {
	Teaser         time.Duration
	RetentionDelay time.Duration
	// Retention is false for lines without a retention price.
	Retention bool
}

// Machine is the paywall state machine of one report slot. It is pure:
// sessions go in, sessions come out.
type Machine struct {
	Timing Timing
}

// Transition is the input of Apply. OrderID is only read by
// EventBeginCheckout.
type Transition struct {
	Event   Event
	Now     time.Time
	OrderID string
}

func State(s domain.GateSession) domain.GateState {
	if s.State == "" {
		return domain.GateLocked
	}
	return s.State
}

func (m Machine) Apply(s domain.GateSession, slotPaid bool, t Transition) (domain.GateSession, error) {
	now := t.Now.UTC()
	if slotPaid || State(s) == domain.GatePaid {
		s.State = domain.GatePaid
		s.RetentionDueAt = nil
		s.RetentionActive = false
		return s, nil
	}

	switch t.Event {
	case EventPaid:
		s.State = domain.GatePaid
		s.RetentionDueAt = nil
		s.RetentionActive = false
		return s, nil

	case EventStartTeaser:
		switch State(s) {
		case domain.GateLocked:
			if s.TeaserStartedAt == nil {
				s.TeaserStartedAt = &now
			}
			s.State = domain.GateTeaserShown
			return s, nil
		case domain.GateTeaserShown, domain.GatePaywallOpen, domain.GateGatewayRedirectPending:
			return s, nil
		}

	case EventOpenPaywall:
		switch State(s) {
		case domain.GateTeaserShown, domain.GateLocked:
			if !m.TeaserDone(s, now) {
				return s, ErrTeaserRunning
			}
			s.State = domain.GatePaywallOpen
			s.WidgetFailed = false
			return s, nil
		case domain.GatePaywallOpen, domain.GateGatewayRedirectPending:
			s.State = domain.GatePaywallOpen
			return s, nil
		}

	case EventClose:
		switch State(s) {
		case domain.GatePaywallOpen, domain.GateGatewayRedirectPending, domain.GateTeaserShown:
			s.State = domain.GateLocked
			s.WidgetFailed = false
			s.OrderID = ""
			if s.RetentionActive {
				s.RetentionActive = false
				return s, nil
			}
			if m.Timing.Retention && !s.RetentionOffered {
				due := now.Add(m.Timing.RetentionDelay)
				s.RetentionDueAt = &due
			}
			return s, nil
		case domain.GateLocked:
			return s, nil
		}

	case EventRetentionOffer:
		if State(s) == domain.GateLocked && m.RetentionDue(s, now) {
			s.State = domain.GatePaywallOpen
			s.RetentionActive = true
			s.RetentionOffered = true
			s.RetentionDueAt = nil
			s.WidgetFailed = false
			return s, nil
		}

	case EventWidgetFailed:
		if State(s) == domain.GatePaywallOpen {
			s.WidgetFailed = true
			return s, nil
		}

	case EventWidgetReady:
		if State(s) == domain.GatePaywallOpen {
			s.WidgetFailed = false
			return s, nil
		}

	case EventBeginCheckout:
		switch State(s) {
		case domain.GatePaywallOpen, domain.GateGatewayRedirectPending:
			if t.OrderID == "" {
				return s, ErrInvalidTransition
			}
			s.State = domain.GateGatewayRedirectPending
			s.OrderID = t.OrderID
			return s, nil
		}

	case EventPaymentFailed:
		switch State(s) {
		case domain.GateGatewayRedirectPending, domain.GatePaywallOpen, domain.GateLocked:
			s.State = domain.GateLocked
			s.OrderID = ""
			s.WidgetFailed = false
			return s, nil
		}
	}
	return s, ErrInvalidTransition
}

// TeaserDone reports whether the teaser has run for its full duration. The
// teaser is never skipped once started, even if the analysis is ready.
func (m Machine) TeaserDone(s domain.GateSession, now time.Time) bool {
	if s.TeaserStartedAt == nil {
		return false
	}
	return !now.Before(s.TeaserStartedAt.Add(m.Timing.Teaser))
}

// RetentionDue reports whether the one-shot retention offer should open.
func (m Machine) RetentionDue(s domain.GateSession, now time.Time) bool {
	if s.RetentionOffered || s.RetentionDueAt == nil {
		return false
	}
	return !now.Before(*s.RetentionDueAt)
}

func Render(s domain.GateSession, slotPaid bool) Rendering {
	if slotPaid || State(s) == domain.GatePaid {
		return RenderFull
	}
	if State(s) == domain.GateLocked {
		return RenderUpsell
	}
	return RenderMasked
}
