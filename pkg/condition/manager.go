package condition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mscrnt/homecards/pkg/broadcast"
	"github.com/mscrnt/homecards/pkg/card"
)

// DefaultTimeout bounds how long a single IsDisplayable call is waited for
const DefaultTimeout = 20 * time.Millisecond

// Option configures a Manager
type Option func(*Manager)

// WithTimeout overrides the per-controller wait
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the logger used for swallowed failures and lifecycle events
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithListener sets the sink receiving refreshed card lists while monitoring
func WithListener(l Listener) Option {
	return func(m *Manager) {
		m.listener = l
	}
}

// WithObserver sets a hook told about every monitoring refresh, after the listener
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// WithSource adds a change source not tied to any controller, such as a
// periodic refresh. Its events trigger refreshes like any controller's.
func WithSource(src broadcast.Source) Option {
	return func(m *Manager) {
		if src != nil {
			m.sources = append(m.sources, src)
		}
	}
}

// Refresh describes one aggregation pass run while monitoring
type Refresh struct {
	SessionID string
	Trigger   string
	Started   time.Time
	Duration  time.Duration
	Cards     []card.Card
}

// Observer is told about each monitoring refresh
type Observer func(Refresh)

// monitorRun holds what one monitoring session needs to be torn down
type monitorRun struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{} // closed once every goroutine of the run has exited
}

// Manager polls every registered controller and returns the cards that are
// displayable, in registry order. The registry is fixed at construction.
type Manager struct {
	controllers []Controller
	index       map[card.ID]int
	timeout     time.Duration
	logger      *zap.Logger
	listener    Listener
	observer    Observer
	sources     []broadcast.Source

	mu      sync.Mutex
	run     *monitorRun
	session *Session
}

// New builds a manager over controllers. Their order is the output order.
func New(controllers []Controller, opts ...Option) (*Manager, error) {
	m := &Manager{
		controllers: make([]Controller, 0, len(controllers)),
		index:       make(map[card.ID]int, len(controllers)),
		timeout:     DefaultTimeout,
		logger:      zap.NewNop(),
		session:     NewSession(),
	}
	for _, opt := range opts {
		opt(m)
	}

	for i, c := range controllers {
		if c == nil {
			return nil, fmt.Errorf("controller %d is nil", i)
		}
		id := c.ID()
		if _, exists := m.index[id]; exists {
			return nil, fmt.Errorf("duplicate controller for card %d", id)
		}
		m.index[id] = len(m.controllers)
		m.controllers = append(m.controllers, c)
	}

	return m, nil
}

// Timeout returns the per-controller wait
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

// IDs returns the registered card ids in registry order
func (m *Manager) IDs() []card.ID {
	ids := make([]card.ID, len(m.controllers))
	for i, c := range m.controllers {
		ids[i] = c.ID()
	}
	return ids
}

// Has reports whether a controller is registered for id
func (m *Manager) Has(id card.ID) bool {
	_, ok := m.index[id]
	return ok
}

// Controller returns the controller registered for id. Asking for an id that
// was never registered is a wiring bug and panics.
func (m *Manager) Controller(id card.ID) Controller {
	i, ok := m.index[id]
	if !ok {
		panic(fmt.Sprintf("condition: no controller registered for card %d", id))
	}
	return m.controllers[i]
}

// Session returns the current session
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Monitoring reports whether change notifications are being followed
func (m *Manager) Monitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run != nil
}

// DisplayableCards runs one aggregation pass against the current session
func (m *Manager) DisplayableCards(ctx context.Context) []card.Card {
	return m.Evaluate(ctx, m.Session())
}

// checkResult is what a controller task hands back
type checkResult struct {
	card card.Card
	ok   bool
	err  error
}

// Evaluate asks every controller concurrently whether it is displayable and
// collects the answers in registry order. A controller that fails, panics or
// does not answer within the timeout is left out of this pass.
func (m *Manager) Evaluate(ctx context.Context, sess *Session) []card.Card {
	results := make([]chan checkResult, len(m.controllers))
	for i, c := range m.controllers {
		// Buffered so an abandoned task can still finish and exit
		ch := make(chan checkResult, 1)
		results[i] = ch
		go func(c Controller) {
			ch <- check(ctx, c, sess)
		}(c)
	}

	cards := make([]card.Card, 0, len(m.controllers))
	for i, c := range m.controllers {
		timer := time.NewTimer(m.timeout)
		select {
		case res := <-results[i]:
			timer.Stop()
			switch {
			case res.err != nil:
				m.logger.Debug("Controller check failed",
					zap.Int64("card", int64(c.ID())), zap.Error(res.err))
			case res.ok:
				cards = append(cards, res.card)
			}
		case <-timer.C:
			m.logger.Debug("Controller check timed out",
				zap.Int64("card", int64(c.ID())), zap.Duration("timeout", m.timeout))
		case <-ctx.Done():
			timer.Stop()
			m.logger.Debug("Aggregation cancelled",
				zap.Int64("card", int64(c.ID())), zap.Error(ctx.Err()))
		}
	}
	return cards
}

// check runs a single controller, turning panics into errors
func check(ctx context.Context, c Controller, sess *Session) (res checkResult) {
	defer func() {
		if r := recover(); r != nil {
			res = checkResult{err: fmt.Errorf("controller %d panicked: %v", c.ID(), r)}
		}
	}()

	if ck, isChecker := c.(Checker); isChecker {
		built, ok, err := ck.Check(ctx, sess)
		if err != nil {
			return checkResult{err: err}
		}
		if !ok {
			return checkResult{}
		}
		return checkResult{card: built, ok: true}
	}

	ok, err := c.IsDisplayable(ctx, sess)
	if err != nil {
		return checkResult{err: err}
	}
	if !ok {
		return checkResult{}
	}
	return checkResult{card: c.BuildCard(), ok: true}
}

// Status is the outcome of checking a single controller
type Status struct {
	ID          card.ID
	Displayable bool
	Card        card.Card // set when Displayable
	Err         error     // failure, panic or timeout
}

// ErrCheckTimeout is reported by Inspect when a controller does not answer in time
var ErrCheckTimeout = errors.New("controller did not answer in time")

// Inspect checks one controller against the current session and reports why
// its card is or is not shown. Unlike Evaluate it waits up to wait, not the
// aggregation timeout. id must be registered.
func (m *Manager) Inspect(ctx context.Context, id card.ID, wait time.Duration) Status {
	c := m.Controller(id)
	sess := m.Session()

	ch := make(chan checkResult, 1)
	go func() {
		ch <- check(ctx, c, sess)
	}()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case res := <-ch:
		return Status{ID: id, Displayable: res.ok, Card: res.card, Err: res.err}
	case <-timer.C:
		return Status{ID: id, Err: ErrCheckTimeout}
	case <-ctx.Done():
		return Status{ID: id, Err: ctx.Err()}
	}
}

// StartMonitoring subscribes to every controller's change source and runs one
// aggregation pass right away. Each event from any source triggers exactly one
// pass and one listener call. Calling it while already monitoring does nothing.
// Cancelling ctx ends monitoring the same way StopMonitoring does.
func (m *Manager) StartMonitoring(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.run != nil {
		return
	}

	monCtx, cancel := context.WithCancel(ctx)
	run := &monitorRun{cancel: cancel, done: make(chan struct{})}
	sess := NewSession()
	m.session = sess
	m.run = run

	subscribed := 0
	subscribe := func(id card.ID, src broadcast.Source) {
		events, err := src.Subscribe(monCtx)
		if err != nil {
			m.logger.Warn("Failed to subscribe to condition changes",
				zap.Int64("card", int64(id)), zap.Error(err))
			return
		}
		subscribed++
		run.wg.Add(1)
		go func() {
			defer run.wg.Done()
			m.follow(monCtx, sess, id, events)
		}()
	}
	for _, c := range m.controllers {
		if src := c.Source(); src != nil {
			subscribe(c.ID(), src)
		}
	}
	for _, src := range m.sources {
		subscribe(0, src)
	}

	m.logger.Info("Started monitoring conditions",
		zap.String("session", sess.ID()),
		zap.Int("controllers", len(m.controllers)),
		zap.Int("subscribed", subscribed))

	run.wg.Add(1)
	go func() {
		defer run.wg.Done()
		m.refresh(monCtx, sess, "start")
	}()

	go func() {
		<-monCtx.Done()
		run.wg.Wait()

		m.mu.Lock()
		if m.run == run {
			m.run = nil
			m.logger.Info("Monitoring ended with its context", zap.String("session", sess.ID()))
		}
		m.mu.Unlock()
		close(run.done)
	}()
}

// StopMonitoring cancels every subscription and waits for in-flight refreshes.
// Calling it while idle does nothing. It must not be called from the listener.
func (m *Manager) StopMonitoring() {
	m.mu.Lock()
	run := m.run
	m.run = nil
	m.mu.Unlock()

	if run == nil {
		return
	}

	run.cancel()
	<-run.done
	m.logger.Info("Stopped monitoring conditions")
}

// follow turns each event of one controller's source into a refresh
func (m *Manager) follow(ctx context.Context, sess *Session, id card.ID, events <-chan broadcast.Event) {
	for {
		select {
		case <-ctx.Done():
			// Let the source close its channel
			for range events {
			}
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.logger.Debug("Condition changed",
				zap.Int64("card", int64(id)),
				zap.String("source", ev.Source),
				zap.String("detail", ev.Detail))
			m.refresh(ctx, sess, ev.Source)
		}
	}
}

// refresh runs one pass and hands the result to the listener
func (m *Manager) refresh(ctx context.Context, sess *Session, trigger string) {
	if ctx.Err() != nil {
		return
	}

	started := time.Now()
	cards := m.Evaluate(ctx, sess)
	duration := time.Since(started)

	// A pass cut short by StopMonitoring is incomplete
	if ctx.Err() != nil {
		m.logger.Debug("Dropped cancelled refresh", zap.String("trigger", trigger))
		return
	}

	m.logger.Debug("Refreshed cards",
		zap.String("trigger", trigger),
		zap.Int("displayable", len(cards)),
		zap.Duration("took", duration))

	m.notify(trigger, func() {
		if m.listener != nil {
			m.listener(cards)
		}
	})
	m.notify(trigger, func() {
		if m.observer != nil {
			m.observer(Refresh{
				SessionID: sess.ID(),
				Trigger:   trigger,
				Started:   started,
				Duration:  duration,
				Cards:     cards,
			})
		}
	})
}

// notify runs a callback, logging instead of crashing if it panics
func (m *Manager) notify(trigger string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Card callback panicked",
				zap.String("trigger", trigger), zap.Any("panic", r))
		}
	}()
	fn()
}
