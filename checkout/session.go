// Package checkout is the payer-side confirmation flow: it issues a charge,
// counts down its display deadline and checks whether payment has landed.
//
//	Idle -> Generating -> Ready -> Checking -> Ready | Confirmed
//	Ready -> Expired (deadline reached, display only)
//
// The countdown belongs to the current charge. Issuing again or closing the
// session stops it; it never cancels anything at the provider.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/otaviobastosmatriz/rh2026/logging"
	"github.com/otaviobastosmatriz/rh2026/models"
)

// State is a position in the confirmation flow.
type State int

const (
	Idle State = iota
	Generating
	Ready
	Checking
	Confirmed
	Expired
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Generating:
		return "generating"
	case Ready:
		return "ready"
	case Checking:
		return "checking"
	case Confirmed:
		return "confirmed"
	case Expired:
		return "expired"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrBusy is returned when an action is requested while another is running.
	ErrBusy = errors.New("checkout: another action is in progress")
	// ErrNoCharge is returned by Check before a charge was issued.
	ErrNoCharge = errors.New("checkout: no charge issued")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("checkout: session closed")
)

// Issuer creates charges.
type Issuer interface {
	IssueCharge(ctx context.Context, req *models.IssueChargeRequest) (*models.ChargePresentation, error)
}

// StatusChecker reads a payer's paid flag.
type StatusChecker interface {
	PaymentStatus(ctx context.Context, slug string) (bool, error)
}

// Payer identifies who the session charges.
type Payer struct {
	Slug  string
	Name  string
	Email string
}

// Option customizes a Session.
type Option func(*Session)

// WithExpiry overrides the countdown window reported by the charge.
func WithExpiry(d time.Duration) Option {
	return func(s *Session) { s.expiry = d }
}

// OnConfirmed registers a callback run once payment is confirmed, so the
// surrounding page can refresh the payer record.
func OnConfirmed(fn func()) Option {
	return func(s *Session) { s.onConfirmed = fn }
}

// OnExpired registers a callback run when the countdown reaches zero.
func OnExpired(fn func()) Option {
	return func(s *Session) { s.onExpired = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session drives one payer through the confirmation flow. It is safe for
// concurrent use.
type Session struct {
	issuer  Issuer
	checker StatusChecker
	payer   Payer

	expiry      time.Duration
	onConfirmed func()
	onExpired   func()
	now         func() time.Time

	mu       sync.Mutex
	state    State
	resting  State // state to return to after Checking
	charge   *models.ChargePresentation
	deadline time.Time
	timer    *time.Timer
	gen      uint64
	closed   bool
}

// NewSession creates an idle session for payer.
func NewSession(issuer Issuer, checker StatusChecker, payer Payer, opts ...Option) *Session {
	s := &Session{
		issuer:  issuer,
		checker: checker,
		payer:   payer,
		now:     time.Now,
		state:   Idle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate issues a new charge, replacing any current one and restarting the
// countdown. On failure the session returns to Idle.
func (s *Session) Generate(ctx context.Context) (*models.ChargePresentation, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.state == Generating || s.state == Checking {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if s.state == Confirmed {
		charge := s.charge
		s.mu.Unlock()
		return charge, nil
	}
	s.stopTimerLocked()
	s.charge = nil
	s.deadline = time.Time{}
	s.state = Generating
	s.mu.Unlock()

	charge, err := s.issuer.IssueCharge(ctx, &models.IssueChargeRequest{
		UserSlug:  s.payer.Slug,
		UserName:  s.payer.Name,
		UserEmail: s.payer.Email,
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if err != nil {
		s.state = Idle
		logging.Warn("charge generation failed", zap.String("slug", s.payer.Slug), zap.Error(err))
		return nil, err
	}

	window := s.expiry
	if window <= 0 {
		window = time.Duration(charge.ExpiresInSeconds) * time.Second
	}
	s.charge = charge
	s.deadline = s.now().Add(window)
	s.state = Ready
	s.startTimerLocked(window)
	return charge, nil
}

// Check asks whether payment has been confirmed. A true answer moves the
// session to Confirmed; false leaves it where it was.
func (s *Session) Check(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	switch s.state {
	case Confirmed:
		s.mu.Unlock()
		return true, nil
	case Ready, Expired:
	case Generating, Checking:
		s.mu.Unlock()
		return false, ErrBusy
	default:
		s.mu.Unlock()
		return false, ErrNoCharge
	}
	s.resting = s.state
	s.state = Checking
	s.mu.Unlock()

	paid, err := s.checker.PaymentStatus(ctx, s.payer.Slug)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	if err != nil || !paid {
		s.state = s.resting
		s.mu.Unlock()
		return false, err
	}

	s.state = Confirmed
	s.stopTimerLocked()
	cb := s.onConfirmed
	s.mu.Unlock()

	if cb != nil {
		cb()
	}
	return true, nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Charge returns the charge being displayed, if any.
func (s *Session) Charge() *models.ChargePresentation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.charge
}

// Remaining is the countdown value, zero once expired or before a charge exists.
func (s *Session) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deadline.IsZero() {
		return 0
	}
	left := s.deadline.Sub(s.now())
	if left < 0 {
		return 0
	}
	return left
}

// Close stops the countdown. The session rejects further actions.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopTimerLocked()
}

func (s *Session) startTimerLocked(window time.Duration) {
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(window, func() { s.expire(gen) })
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *Session) expire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	fire := false
	switch s.state {
	case Ready:
		s.state = Expired
		fire = true
	case Checking:
		// Check settles the state when it returns.
		s.resting = Expired
		fire = true
	}
	cb := s.onExpired
	s.mu.Unlock()

	if fire && cb != nil {
		cb()
	}
}

// FormatCountdown renders d as MM:SS.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
