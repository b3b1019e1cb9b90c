package codescanner

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const waitTimeout = 2 * time.Second

// fakeCamera blocks Acquire until the test delivers a result
type fakeCamera struct {
	calls       int32
	results     chan acquireResult
	constraints chan Constraints
}

type acquireResult struct {
	stream Stream
	err    error
}

func newFakeCamera() *fakeCamera {
	return &fakeCamera{
		results:     make(chan acquireResult, 4),
		constraints: make(chan Constraints, 4),
	}
}

func (c *fakeCamera) Acquire(ctx context.Context, cs Constraints) (Stream, error) {
	atomic.AddInt32(&c.calls, 1)
	c.constraints <- cs
	select {
	case r := <-c.results:
		return r.stream, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeCamera) Calls() int {
	return int(atomic.LoadInt32(&c.calls))
}

// fakeFrames is a frame source the test controls
type fakeFrames struct {
	mu    sync.Mutex
	img   image.Image
	ready chan struct{}
	once  sync.Once
}

func newFakeFrames() *fakeFrames {
	return &fakeFrames{ready: make(chan struct{})}
}

func (f *fakeFrames) publish(img image.Image) {
	f.mu.Lock()
	f.img = img
	f.mu.Unlock()
	f.once.Do(func() { close(f.ready) })
}

func (f *fakeFrames) Latest() (image.Image, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.img, f.img != nil
}

func (f *fakeFrames) Ready() <-chan struct{} { return f.ready }

// fakeTrack is a video track recording stops and constraint updates
type fakeTrack struct {
	kind    string
	frames  *fakeFrames
	stops   int32
	mu      sync.Mutex
	applied []Constraints
	failErr error
}

func (t *fakeTrack) Kind() string { return t.kind }

func (t *fakeTrack) Stop() error {
	atomic.AddInt32(&t.stops, 1)
	return nil
}

func (t *fakeTrack) Stopped() bool { return atomic.LoadInt32(&t.stops) > 0 }

func (t *fakeTrack) ApplyConstraints(_ context.Context, c Constraints) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failErr != nil {
		return t.failErr
	}
	t.applied = append(t.applied, c)
	return nil
}

func (t *fakeTrack) Applied() []Constraints {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Constraints(nil), t.applied...)
}

func (t *fakeTrack) setFail(err error) {
	t.mu.Lock()
	t.failErr = err
	t.mu.Unlock()
}

func (t *fakeTrack) Frames() FrameSource { return t.frames }

// fakeStream holds one video track and optionally an audio track
type fakeStream struct {
	id    string
	video []*fakeTrack
	other []*fakeTrack
}

func newFakeStream(id string) *fakeStream {
	return &fakeStream{
		id:    id,
		video: []*fakeTrack{{kind: "video", frames: newFakeFrames()}},
		other: []*fakeTrack{{kind: "audio"}},
	}
}

func (s *fakeStream) ID() string { return s.id }

func (s *fakeStream) Tracks() []Track {
	var out []Track
	for _, t := range s.video {
		out = append(out, t)
	}
	for _, t := range s.other {
		out = append(out, t)
	}
	return out
}

func (s *fakeStream) VideoTracks() []VideoTrack {
	var out []VideoTrack
	for _, t := range s.video {
		out = append(out, t)
	}
	return out
}

func (s *fakeStream) allStopped() bool {
	for _, t := range s.video {
		if !t.Stopped() {
			return false
		}
	}
	for _, t := range s.other {
		if !t.Stopped() {
			return false
		}
	}
	return true
}

// fakeDecoder returns results fed by the test, one per Decode call
type fakeDecoder struct {
	calls   int32
	started chan struct{}
	results chan decodeResult
}

type decodeResult struct {
	out Outcome
	err error
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{
		started: make(chan struct{}, 8),
		results: make(chan decodeResult, 8),
	}
}

func (d *fakeDecoder) Decode(ctx context.Context, luma []byte, w, h int) (Outcome, error) {
	atomic.AddInt32(&d.calls, 1)
	if len(luma) != w*h {
		return Outcome{}, fmt.Errorf("luma length %d does not match %dx%d", len(luma), w, h)
	}
	d.started <- struct{}{}
	select {
	case r := <-d.results:
		return r.out, r.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (d *fakeDecoder) Calls() int { return int(atomic.LoadInt32(&d.calls)) }

// manualTicker fires only when the test sends on it
type manualTicker struct {
	c       chan time.Time
	stopped int32
}

func (t *manualTicker) C() <-chan time.Time { return t.c }
func (t *manualTicker) Stop()               { atomic.StoreInt32(&t.stopped, 1) }
func (t *manualTicker) Stopped() bool       { return atomic.LoadInt32(&t.stopped) == 1 }

func (t *manualTicker) fire() { t.c <- time.Now() }

// recordingHost records host events in order
type recordingHost struct {
	events chan hostEvent
}

type hostEvent struct {
	kind      string
	sessionID string
	outcome   Outcome
	err       *Error
}

func newRecordingHost() *recordingHost {
	return &recordingHost{events: make(chan hostEvent, 32)}
}

func (h *recordingHost) OnScanned(id string, o Outcome) {
	h.events <- hostEvent{kind: "scanned", sessionID: id, outcome: o}
}

func (h *recordingHost) OnError(id string, err *Error) {
	h.events <- hostEvent{kind: "error", sessionID: id, err: err}
}

func (h *recordingHost) OnClosed(id string) {
	h.events <- hostEvent{kind: "closed", sessionID: id}
}

func (h *recordingHost) expect(t *testing.T, kind string) hostEvent {
	t.Helper()
	select {
	case ev := <-h.events:
		if ev.kind != kind {
			t.Fatalf("host event = %s, want %s", ev.kind, kind)
		}
		return ev
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for host event %s", kind)
	}
	return hostEvent{}
}

func (h *recordingHost) expectNone(t *testing.T) {
	t.Helper()
	select {
	case ev := <-h.events:
		t.Fatalf("unexpected host event %s", ev.kind)
	case <-time.After(50 * time.Millisecond):
	}
}

// harness runs a scanner with fakes and a manual ticker
type harness struct {
	t       *testing.T
	scanner *Scanner
	camera  *fakeCamera
	decoder *fakeDecoder
	host    *recordingHost
	tickers chan *manualTicker
	cancel  context.CancelFunc
	runErr  chan error
	once    sync.Once
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	h := &harness{
		t:       t,
		camera:  newFakeCamera(),
		decoder: newFakeDecoder(),
		host:    newRecordingHost(),
		tickers: make(chan *manualTicker, 4),
		runErr:  make(chan error, 1),
	}

	s, err := New(cfg, h.camera, h.host, WithDecoder(h.decoder))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	s.newTicker = func(time.Duration) ticker {
		tk := &manualTicker{c: make(chan time.Time, 1)}
		h.tickers <- tk
		return tk
	}
	h.scanner = s

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.runErr <- s.Run(ctx) }()

	waitFor(t, "driver running", func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.running
	})

	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.once.Do(func() {
		h.cancel()
		select {
		case <-h.runErr:
		case <-time.After(waitTimeout):
			h.t.Errorf("Run did not return after cancel")
		}
	})
}

func (h *harness) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	h.t.Cleanup(cancel)
	return ctx
}

// streaming drives a fresh scanner into Streaming with an armed timer
func (h *harness) streaming() (*fakeStream, *manualTicker) {
	h.t.Helper()

	if err := h.scanner.Start(h.ctx()); err != nil {
		h.t.Fatalf("Start() failed: %v", err)
	}
	stream := newFakeStream("stream-1")
	h.camera.results <- acquireResult{stream: stream}

	waitFor(h.t, "streaming phase", func() bool { return h.scanner.Phase() == PhaseStreaming })

	stream.video[0].frames.publish(testFrame(1600, 1200))
	return stream, h.ticker()
}

func (h *harness) ticker() *manualTicker {
	h.t.Helper()
	select {
	case tk := <-h.tickers:
		return tk
	case <-time.After(waitTimeout):
		h.t.Fatal("timed out waiting for the sample timer")
	}
	return nil
}

func (h *harness) awaitDecode() {
	h.t.Helper()
	select {
	case <-h.decoder.started:
	case <-time.After(waitTimeout):
		h.t.Fatal("timed out waiting for a decode")
	}
}

func testFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y += 7 {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	return img
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
