package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analytics-tag-checker/internal/host"
	"analytics-tag-checker/internal/metrics"
	"analytics-tag-checker/internal/mock"
	"analytics-tag-checker/internal/models"
)

type fakeHost struct {
	mu          sync.Mutex
	url         string
	markupFn    func(ctx context.Context, call int) (string, error)
	records     []models.ResourceRecord
	markupCalls int
}

func (h *fakeHost) CurrentURL(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url, nil
}

func (h *fakeHost) Markup(ctx context.Context) (string, error) {
	h.mu.Lock()
	h.markupCalls++
	call := h.markupCalls
	fn := h.markupFn
	h.mu.Unlock()
	return fn(ctx, call)
}

func (h *fakeHost) ResourceRecords(ctx context.Context) ([]models.ResourceRecord, error) {
	return h.records, nil
}

func (h *fakeHost) Navigate(ctx context.Context, url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.url = url
	return nil
}

func (h *fakeHost) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.markupCalls
}

func staticMarkup(markup string) func(context.Context, int) (string, error) {
	return func(context.Context, int) (string, error) { return markup, nil }
}

const gtmPage = `<html><script>dataLayer.push({'gtm.start': 1});</script><script src="https://www.googletagmanager.com/gtm.js?id=GTM-ABC1234"></script></html>`

func newTestSession(h host.Host) *Session {
	return NewSession(h, Options{Mock: mock.NewGenerator(1), Metrics: metrics.New()})
}

func TestInitialState(t *testing.T) {
	s := newTestSession(&fakeHost{url: "https://example.com"})
	cur := s.Current()
	assert.False(t, cur.IsLoading)
	assert.False(t, cur.IsRestrictedURL)
	assert.Equal(t, 0, cur.DetectedCount())
	assert.Len(t, cur.Results, len(models.Vendors))
}

func TestAnalyze(t *testing.T) {
	h := &fakeHost{url: "https://example.com", markupFn: staticMarkup(gtmPage)}
	s := newTestSession(h)

	got, err := s.Analyze(context.Background())
	require.NoError(t, err)
	assert.False(t, got.IsLoading)
	assert.Equal(t, "https://example.com", got.CurrentURL)
	assert.Equal(t, models.DetectionResult{Detected: true, IDs: []string{"GTM-ABC1234"}}, got.Result(models.VendorGTM))
	assert.Equal(t, 1, got.DetectedCount())
	require.NotNil(t, got.AnalyzedAt)
	assert.False(t, got.AnalyzedAt.IsZero())
	assert.Equal(t, got, s.Current())
}

func TestRestrictedURLSkipsMarkup(t *testing.T) {
	h := &fakeHost{url: "chrome://extensions", markupFn: staticMarkup(gtmPage)}
	s := newTestSession(h)

	got, err := s.Analyze(context.Background())
	require.NoError(t, err)
	assert.True(t, got.IsRestrictedURL)
	assert.False(t, got.IsLoading)
	assert.Equal(t, 0, got.DetectedCount())
	assert.Equal(t, 0, h.calls())
}

func TestAccessDeniedIsRestricted(t *testing.T) {
	h := &fakeHost{url: "https://intranet.example", markupFn: func(context.Context, int) (string, error) {
		return "", host.ErrAccessDenied
	}}
	got, err := newTestSession(h).Analyze(context.Background())
	require.NoError(t, err)
	assert.True(t, got.IsRestrictedURL)
	assert.Equal(t, "https://intranet.example", got.CurrentURL)
}

func TestFailureKeepsPreviousResults(t *testing.T) {
	h := &fakeHost{url: "https://example.com", markupFn: func(_ context.Context, call int) (string, error) {
		if call == 1 {
			return gtmPage, nil
		}
		return "", errors.New("connection reset")
	}}
	s := newTestSession(h)
	_, err := s.Analyze(context.Background())
	require.NoError(t, err)

	got, err := s.Analyze(context.Background())
	require.ErrorIs(t, err, ErrUnexpectedFailure)
	assert.False(t, got.IsLoading)
	assert.True(t, got.Result(models.VendorGTM).Detected)
	assert.False(t, s.Current().IsLoading)
}

func TestNoHostFallsBackToMock(t *testing.T) {
	got, err := newTestSession(nil).Analyze(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Mock)
	assert.False(t, got.IsLoading)
}

func TestHostUnavailableFallsBackToMock(t *testing.T) {
	h := &fakeHost{url: "https://example.com", markupFn: func(context.Context, int) (string, error) {
		return "", errors.Join(errors.New("chrome not found"), host.ErrHostUnavailable)
	}}
	got, err := newTestSession(h).Analyze(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Mock)
	assert.Equal(t, "https://example.com", got.CurrentURL)
}

func TestNetworkRecordsConfirmAmplitude(t *testing.T) {
	h := &fakeHost{
		url:      "https://example.com",
		markupFn: staticMarkup("<html><script src=\"/bundle.js\"></script></html>"),
		records:  []models.ResourceRecord{{URL: "https://cdn.amplitude.com/libs/analytics-browser-2.11.1-min.js.gz"}},
	}
	got, err := newTestSession(h).Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DetectionResult{Detected: true, IDs: []string{}}, got.Result(models.VendorAmplitude))
}

func TestNetworkConfirmedAfterCommit(t *testing.T) {
	h := &fakeHost{url: "https://example.com", markupFn: staticMarkup("<html></html>")}
	s := newTestSession(h)
	_, err := s.Analyze(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.HandleNetworkConfirmed(NetworkConfirmed{Vendor: models.VendorClarity, Detected: true}))
	assert.Equal(t, models.DetectionResult{Detected: true, IDs: []string{}}, s.Current().Result(models.VendorClarity))

	// no network confirmation for GTM
	require.NoError(t, s.HandleNetworkConfirmed(NetworkConfirmed{Vendor: models.VendorGTM, Detected: true}))
	assert.False(t, s.Current().Result(models.VendorGTM).Detected)

	assert.Error(t, s.HandleNetworkConfirmed(NetworkConfirmed{Vendor: "segment", Detected: true}))
}

func TestNetworkConfirmedBeforeCommitIsPerPage(t *testing.T) {
	h := &fakeHost{url: "https://a.example", markupFn: staticMarkup("<html></html>")}
	s := newTestSession(h)

	require.NoError(t, s.HandleNetworkConfirmed(NetworkConfirmed{URL: "https://a.example", Vendor: models.VendorAmplitude, Detected: true}))
	got, err := s.Analyze(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Result(models.VendorAmplitude).Detected)

	got, err = s.HandlePageLoaded(context.Background(), PageLoaded{TabID: 7, URL: "https://b.example"})
	require.NoError(t, err)
	assert.Equal(t, "https://b.example", got.CurrentURL)
	assert.False(t, got.Result(models.VendorAmplitude).Detected, "confirmation must not leak to another page")
}

func blockedMarkup(release <-chan struct{}, markup string) func(context.Context, int) (string, error) {
	return func(ctx context.Context, _ int) (string, error) {
		select {
		case <-release:
			return markup, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func TestNetworkConfirmedDuringFirstRun(t *testing.T) {
	release := make(chan struct{})
	h := &fakeHost{url: "https://example.com", markupFn: blockedMarkup(release, "<html></html>")}
	s := newTestSession(h)

	done := make(chan models.PageAnalysis, 1)
	go func() {
		a, _ := s.Analyze(context.Background())
		done <- a
	}()
	require.Eventually(t, func() bool { return h.calls() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.HandleNetworkConfirmed(NetworkConfirmed{Vendor: models.VendorAmplitude, Detected: true}))
	close(release)

	got := <-done
	assert.Equal(t, models.DetectionResult{Detected: true, IDs: []string{}}, got.Result(models.VendorAmplitude))
	assert.True(t, s.Current().Result(models.VendorAmplitude).Detected)
}

func TestNetworkConfirmedWhileLoadingNewPage(t *testing.T) {
	release := make(chan struct{})
	h := &fakeHost{url: "https://a.example", markupFn: func(ctx context.Context, call int) (string, error) {
		if call == 1 {
			return "<html></html>", nil
		}
		return blockedMarkup(release, "<html></html>")(ctx, call)
	}}
	s := newTestSession(h)
	_, err := s.Analyze(context.Background())
	require.NoError(t, err)

	done := make(chan models.PageAnalysis, 1)
	go func() {
		a, _ := s.HandlePageLoaded(context.Background(), PageLoaded{TabID: 1, URL: "https://b.example"})
		done <- a
	}()
	require.Eventually(t, func() bool { return h.calls() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.HandleNetworkConfirmed(NetworkConfirmed{Vendor: models.VendorClarity, Detected: true}))
	close(release)

	got := <-done
	assert.Equal(t, "https://b.example", got.CurrentURL)
	assert.True(t, got.Result(models.VendorClarity).Detected)

	// kept for the page: a refresh of the same URL still carries it
	again, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, again.Result(models.VendorClarity).Detected)
}

func TestSimulatedHostIsMock(t *testing.T) {
	h := mock.NewHost(mock.NewGenerator(5))
	h.URL = "https://a.example"
	s := newTestSession(h)

	got, err := s.Analyze(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Mock)
	assert.Equal(t, "https://a.example", got.CurrentURL)

	clarity := got.Result(models.VendorClarity)
	require.NoError(t, s.HandleNetworkConfirmed(NetworkConfirmed{Vendor: models.VendorClarity, Detected: true}))
	assert.Equal(t, clarity, s.Current().Result(models.VendorClarity), "mock results take no network confirmation")
}

func TestCloseEndsRunAndSubscriptions(t *testing.T) {
	h := &fakeHost{url: "https://example.com", markupFn: blockedMarkup(make(chan struct{}), "")}
	s := newTestSession(h)
	events, stop := s.Subscribe()

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Analyze(context.Background())
		errCh <- err
	}()
	require.Eventually(t, func() bool { return h.calls() == 1 }, time.Second, 5*time.Millisecond)

	s.Close()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("run was not cancelled")
	}

	for range events {
	}
	stop()

	late, stopLate := s.Subscribe()
	_, open := <-late
	assert.False(t, open)
	stopLate()
}

func TestNewerTriggerCancelsOlderRun(t *testing.T) {
	h := &fakeHost{url: "https://example.com", markupFn: func(ctx context.Context, call int) (string, error) {
		if call == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return gtmPage, nil
	}}
	s := newTestSession(h)

	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Analyze(context.Background())
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return h.calls() == 1 }, time.Second, 5*time.Millisecond)

	second, err := s.Analyze(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Result(models.VendorGTM).Detected)

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("first run did not return")
	}
	assert.Equal(t, second, s.Current())
}

func TestStaleRunDoesNotOverwrite(t *testing.T) {
	release := make(chan struct{})
	h := &fakeHost{url: "https://example.com", markupFn: func(_ context.Context, call int) (string, error) {
		if call == 1 {
			// ignores cancellation, finishes after the newer run
			<-release
			return `<script>clarity.load("stale1")</script>`, nil
		}
		return gtmPage, nil
	}}
	s := newTestSession(h)

	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Analyze(context.Background())
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return h.calls() == 1 }, time.Second, 5*time.Millisecond)

	_, err := s.Analyze(context.Background())
	require.NoError(t, err)
	close(release)
	assert.ErrorIs(t, <-firstErr, ErrSuperseded)

	cur := s.Current()
	assert.True(t, cur.Result(models.VendorGTM).Detected)
	assert.False(t, cur.Result(models.VendorClarity).Detected)
	assert.False(t, cur.IsLoading)
}

func TestSubscribe(t *testing.T) {
	h := &fakeHost{url: "https://example.com", markupFn: staticMarkup(gtmPage)}
	s := newTestSession(h)
	events, stop := s.Subscribe()
	defer stop()

	_, err := s.Analyze(context.Background())
	require.NoError(t, err)

	next := func() Event {
		select {
		case ev := <-events:
			return ev
		case <-time.After(time.Second):
			t.Fatal("no event")
		}
		return Event{}
	}

	loading := next()
	require.Equal(t, EventAnalysis, loading.Type)
	assert.True(t, loading.Analysis.IsLoading)

	done := next()
	require.Equal(t, EventAnalysis, done.Type)
	assert.False(t, done.Analysis.IsLoading)
	assert.True(t, done.Analysis.Result(models.VendorGTM).Detected)

	note := next()
	assert.Equal(t, EventNotification, note.Type)
	assert.Equal(t, LevelInfo, note.Level)

	stop()
	_, open := <-events
	assert.False(t, open)
	stop()
}

func TestSnapshotsAreIndependent(t *testing.T) {
	h := &fakeHost{url: "https://example.com", markupFn: staticMarkup(gtmPage)}
	s := newTestSession(h)
	got, err := s.Analyze(context.Background())
	require.NoError(t, err)

	got.Results[models.VendorGTM].IDs[0] = "mutated"
	assert.Equal(t, []string{"GTM-ABC1234"}, s.Current().Result(models.VendorGTM).IDs)
}
