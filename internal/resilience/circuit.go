package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses a commerce call.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State of a Breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

var stateNames = [...]string{Closed: "closed", Open: "open", HalfOpen: "half_open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Breaker trips when the failure ratio over the most recent outcomes reaches
// a threshold. Outcomes are kept in a ring of twice the minimum sample size,
// so a burst of old failures ages out as new calls succeed.
type Breaker struct {
	mu sync.Mutex

	state    State
	ring     []bool
	next     int
	filled   int
	failed   int
	inFlight bool

	minSamples int
	ratio      float64
	cooldown   time.Duration
	trippedAt  time.Time

	target string
	logger zerolog.Logger
	now    func() time.Time
}

// NewBreaker returns a closed breaker that opens once minSamples outcomes
// have been seen and at least ratio of the recent ones failed. An open
// breaker admits a single probe after cooldown.
func NewBreaker(minSamples int, ratio float64, cooldown time.Duration) *Breaker {
	minSamples = max(minSamples, 1)
	if ratio <= 0 {
		ratio = 0.5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		ring:       make([]bool, minSamples*2),
		minSamples: minSamples,
		ratio:      min(ratio, 1),
		cooldown:   cooldown,
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
}

// WithTarget names the upstream in metrics and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = strings.TrimSpace(target)
	b.publishLocked()
	return b
}

// WithLogger sets the logger for state changes.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may go out now.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if b.now().Sub(b.trippedAt) < b.cooldown {
			return false
		}
		b.moveLocked(ctx, HalfOpen)
	}
	if b.state == HalfOpen {
		if b.inFlight {
			return false
		}
		b.inFlight = true
	}
	return true
}

// Report records the outcome of a call admitted by Allow.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.inFlight = false
		if success {
			b.moveLocked(ctx, Closed)
		} else {
			b.moveLocked(ctx, Open)
		}
		return
	}

	if b.filled == len(b.ring) {
		if !b.ring[b.next] {
			b.failed--
		}
	} else {
		b.filled++
	}
	b.ring[b.next] = success
	if !success {
		b.failed++
	}
	b.next = (b.next + 1) % len(b.ring)

	if b.filled >= b.minSamples && float64(b.failed) >= b.ratio*float64(b.filled) {
		b.moveLocked(ctx, Open)
	}
}

func (b *Breaker) moveLocked(ctx context.Context, to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.next, b.filled, b.failed = 0, 0, 0
	if to == Open {
		b.trippedAt = b.now()
	}
	b.publishLocked()

	name := b.name()
	if breakerTransitions != nil {
		breakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
	}
	evt := b.logger.Info()
	if to == Open {
		evt = b.logger.Warn()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Str("target", name).Str("from_state", from.String()).Str("to_state", to.String()).Msg("breaker_transition")
}

func (b *Breaker) publishLocked() {
	if breakerState != nil {
		breakerState.WithLabelValues(b.name()).Set(float64(b.state))
	}
}

func (b *Breaker) name() string {
	if b.target == "" {
		return "default"
	}
	return b.target
}
