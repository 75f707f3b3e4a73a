package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"analytics-tag-checker/internal/detector"
	"analytics-tag-checker/internal/gate"
	"analytics-tag-checker/internal/host"
	"analytics-tag-checker/internal/metrics"
	"analytics-tag-checker/internal/mock"
	"analytics-tag-checker/internal/models"
	"analytics-tag-checker/pkg/logger"
)

var (
	// ErrUnexpectedFailure wraps any retrieval failure other than access denied.
	ErrUnexpectedFailure = errors.New("unexpected failure")
	// ErrSuperseded is returned by a run that a newer trigger replaced before it finished.
	ErrSuperseded = errors.New("analysis superseded")
)

type Options struct {
	Engine  *detector.Engine
	Mock    *mock.Generator
	Log     *logger.Logger
	Metrics *metrics.Recorder
	// subscriber channel buffer
	Buffer int
}

// Session owns one PageAnalysis and is the only thing that mutates it.
// Every trigger starts a new generation; older runs in flight are cancelled
// and never commit.
type Session struct {
	host    host.Host
	engine  *detector.Engine
	mock    *mock.Generator
	log     *logger.Logger
	metrics *metrics.Recorder
	buffer  int

	mu         sync.Mutex
	current    models.PageAnalysis
	generation uint64
	cancel     context.CancelFunc
	// network confirmations for confirmedURL only
	confirmedURL string
	confirmed    map[models.Vendor]bool
	// confirmations for the page being analysed, URL not yet known
	inflight map[models.Vendor]bool

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
	closed  bool
}

// NewSession builds a session over h. A nil host means no inspection
// capability: every analysis is generated by the mock generator.
func NewSession(h host.Host, opts Options) *Session {
	if opts.Engine == nil {
		opts.Engine = detector.New()
	}
	if opts.Mock == nil {
		opts.Mock = mock.NewGenerator(0)
	}
	if opts.Log == nil {
		opts.Log = logger.New()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 16
	}
	return &Session{
		host:      h,
		engine:    opts.Engine,
		mock:      opts.Mock,
		log:       opts.Log,
		metrics:   opts.Metrics,
		buffer:    opts.Buffer,
		current:   models.NewPageAnalysis(),
		confirmed: map[models.Vendor]bool{},
		inflight:  map[models.Vendor]bool{},
		subs:      map[int]chan Event{},
	}
}

// Current returns a copy of the latest committed state.
func (s *Session) Current() models.PageAnalysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Refresh is the manual re-run trigger.
func (s *Session) Refresh(ctx context.Context) (models.PageAnalysis, error) {
	return s.Analyze(ctx)
}

// HandlePageLoaded re-runs the analysis, pointing the host at the new URL first
// when the event carries one.
func (s *Session) HandlePageLoaded(ctx context.Context, ev PageLoaded) (models.PageAnalysis, error) {
	s.log.Debugf("page loaded tab=%d url=%s", ev.TabID, ev.URL)
	if ev.URL != "" {
		if nav, ok := s.host.(host.Navigator); ok {
			if err := nav.Navigate(ctx, ev.URL); err != nil {
				return s.Current(), fmt.Errorf("navigate %s: %w", ev.URL, err)
			}
		}
	}
	return s.Analyze(ctx)
}

// HandleNetworkConfirmed records an out-of-band network result. A positive
// result marks the vendor detected on the committed analysis right away when
// it belongs to the same page. Without a URL, a result arriving while a run
// is in flight (or before the first one) belongs to the page that run
// commits. Vendors without network confirmation ignore it.
func (s *Session) HandleNetworkConfirmed(ev NetworkConfirmed) error {
	if !ev.Vendor.Valid() {
		return fmt.Errorf("unknown vendor %q", ev.Vendor)
	}
	if !s.engine.SupportsNetwork(ev.Vendor) {
		s.log.Debugf("network confirmation ignored for %s", ev.Vendor)
		return nil
	}

	s.mu.Lock()
	url := ev.URL
	if url == "" && (s.current.IsLoading || s.current.CurrentURL == "") {
		s.inflight[ev.Vendor] = ev.Detected
		s.mu.Unlock()
		return nil
	}
	if url == "" {
		url = s.current.CurrentURL
	}
	if url != s.confirmedURL {
		s.confirmedURL = url
		s.confirmed = map[models.Vendor]bool{}
	}
	s.confirmed[ev.Vendor] = ev.Detected

	var snapshot *models.PageAnalysis
	r := s.current.Result(ev.Vendor)
	if ev.Detected && !r.Detected && !s.current.IsLoading && !s.current.IsRestrictedURL && !s.current.Mock && s.current.CurrentURL == url {
		r.Detected = true
		s.current.Results[ev.Vendor] = r
		c := s.current.Clone()
		snapshot = &c
	}
	s.mu.Unlock()

	if snapshot != nil {
		s.publish(Event{Type: EventAnalysis, Analysis: snapshot})
	}
	return nil
}

// Analyze runs the whole pipeline and commits the result. Restricted pages
// and a missing host are not errors. Any other failure keeps the previous
// results, clears the loading flag and is returned wrapped in
// ErrUnexpectedFailure.
func (s *Session) Analyze(ctx context.Context) (models.PageAnalysis, error) {
	start := time.Now()
	runCtx, gen, cancel := s.begin(ctx)
	defer cancel()

	result, outcome, err := s.run(runCtx)
	if err != nil {
		return s.fail(gen, start, err)
	}
	return s.commit(gen, start, result, outcome)
}

func (s *Session) begin(ctx context.Context) (context.Context, uint64, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	gen := s.generation
	s.cancel = cancel
	s.current.IsLoading = true
	snapshot := s.current.Clone()
	s.mu.Unlock()

	s.publish(Event{Type: EventAnalysis, Analysis: &snapshot})
	return runCtx, gen, cancel
}

func (s *Session) run(ctx context.Context) (models.PageAnalysis, string, error) {
	if s.host == nil {
		return s.mockAnalysis(""), metrics.OutcomeMock, nil
	}

	url, err := s.host.CurrentURL(ctx)
	if err != nil {
		if errors.Is(err, host.ErrHostUnavailable) {
			return s.mockAnalysis(""), metrics.OutcomeMock, nil
		}
		return models.PageAnalysis{}, "", fmt.Errorf("current url: %w", err)
	}
	if gate.IsRestricted(url) {
		s.log.Infof("skipping restricted url %s", url)
		return restricted(url), metrics.OutcomeRestricted, nil
	}

	markup, err := s.host.Markup(ctx)
	switch {
	case errors.Is(err, host.ErrAccessDenied):
		s.log.Infof("access denied for %s: %v", url, err)
		return restricted(url), metrics.OutcomeRestricted, nil
	case errors.Is(err, host.ErrHostUnavailable):
		s.log.Warnf("no page inspection available, using mock data: %v", err)
		return s.mockAnalysis(url), metrics.OutcomeMock, nil
	case err != nil:
		return models.PageAnalysis{}, "", fmt.Errorf("markup %s: %w", url, err)
	}
	s.log.Debugf("markup retrieved url=%s bytes=%d", url, len(markup))

	records, err := s.host.ResourceRecords(ctx)
	if err != nil {
		s.log.Warnf("resource records unavailable for %s: %v", url, err)
		records = nil
	}

	a := models.NewPageAnalysis()
	a.CurrentURL = url
	for v, r := range s.engine.Run(markup, records) {
		a.Results[v] = r
	}
	if sim, ok := s.host.(host.Simulator); ok && sim.Simulated() {
		a.Mock = true
		return a, metrics.OutcomeMock, nil
	}
	return a, metrics.OutcomeDetected, nil
}

func (s *Session) mockAnalysis(url string) models.PageAnalysis {
	a := s.mock.Analysis()
	a.CurrentURL = url
	return a
}

func restricted(url string) models.PageAnalysis {
	a := models.NewPageAnalysis()
	a.IsRestrictedURL = true
	a.CurrentURL = url
	return a
}

func (s *Session) commit(gen uint64, start time.Time, a models.PageAnalysis, outcome string) (models.PageAnalysis, error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.metrics.ObserveAnalysis(metrics.OutcomeSuperseded, time.Since(start))
		return a, ErrSuperseded
	}
	if a.CurrentURL != s.confirmedURL {
		s.confirmedURL = a.CurrentURL
		s.confirmed = map[models.Vendor]bool{}
	}
	for v, hit := range s.inflight {
		s.confirmed[v] = hit
	}
	s.inflight = map[models.Vendor]bool{}
	for v, hit := range s.confirmed {
		if a.IsRestrictedURL || a.Mock {
			break
		}
		if r := a.Result(v); hit && !r.Detected {
			r.Detected = true
			a.Results[v] = r
		}
	}
	a.IsLoading = false
	now := time.Now()
	a.AnalyzedAt = &now
	s.current = a
	s.cancel = nil
	snapshot := a.Clone()
	s.mu.Unlock()

	s.metrics.ObserveAnalysis(outcome, time.Since(start))
	s.metrics.ObserveDetections(snapshot)
	s.log.Infof("analysis done url=%s detected=%d outcome=%s", snapshot.CurrentURL, snapshot.DetectedCount(), outcome)

	s.publish(Event{Type: EventAnalysis, Analysis: &snapshot})
	switch {
	case snapshot.IsRestrictedURL:
		s.notify(LevelInfo, "page cannot be inspected")
	case snapshot.Mock:
		s.notify(LevelInfo, "analysis completed (simulation mode)")
	default:
		s.notify(LevelInfo, "analysis completed")
	}
	return snapshot.Clone(), nil
}

func (s *Session) fail(gen uint64, start time.Time, cause error) (models.PageAnalysis, error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.metrics.ObserveAnalysis(metrics.OutcomeSuperseded, time.Since(start))
		return models.PageAnalysis{}, ErrSuperseded
	}
	s.current.IsLoading = false
	s.cancel = nil
	s.inflight = map[models.Vendor]bool{}
	snapshot := s.current.Clone()
	s.mu.Unlock()

	s.metrics.ObserveAnalysis(metrics.OutcomeFailed, time.Since(start))
	s.log.Errorf("analysis failed: %v", cause)

	s.publish(Event{Type: EventAnalysis, Analysis: &snapshot})
	s.notify(LevelError, "error analysing the page")
	return snapshot.Clone(), fmt.Errorf("%w: %w", ErrUnexpectedFailure, cause)
}

// Subscribe returns a channel of session events and a function that stops
// the subscription. Slow subscribers miss events rather than block the session.
// After Close the channel is returned already closed.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, s.buffer)

	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

// Close cancels the run in flight and ends every subscription. Later runs
// still work but publish to nobody.
func (s *Session) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Session) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.log.Warnf("subscriber %d is full, dropping %s event", id, ev.Type)
		}
	}
}

func (s *Session) notify(level, msg string) {
	s.publish(Event{Type: EventNotification, Level: level, Message: msg})
}
