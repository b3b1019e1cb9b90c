package codescanner

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/code-scanner/internal/luma"
	"github.com/e7canasta/code-scanner/internal/surface"
)

const inboxSize = 16

// Scanner runs capture sessions against a camera: acquire a stream, sample
// frames on a timer, decode them, and release the stream exactly once.
//
// All session state is owned by the driver goroutine started with Run.
// Start, Close and ToggleFlashlight post messages to its inbox and wait for
// them to be handled, so transitions never run concurrently.
type Scanner struct {
	cfg     Config
	camera  Camera
	decoder Decoder
	host    Host

	newTicker func(time.Duration) ticker

	inbox chan message

	mu      sync.RWMutex // protects running, done and status
	running bool
	done    chan struct{}
	status  Status
	posting sync.WaitGroup // completions between the done check and their send

	// Driver-owned state (never touched outside Run)
	st         session
	gen        uint64
	runDone    chan struct{}
	surface    *surface.Surface
	lastResult *Outcome

	// Statistics (atomic for thread-safety)
	sessionsStarted uint64
	scans           uint64
	ticks           uint64
	ticksSkipped    uint64
	decodeAttempts  uint64
	decodeNotFound  uint64
	errorsReported  uint64
	staleResults    uint64
	lastLatency     int64
}

// session is the state of the current session. Only the fields of the
// current phase are set; every transition replaces or edits it on the driver.
type session struct {
	phase Phase
	id    string
	gen   uint64

	// Acquiring
	cancelAcquire context.CancelFunc

	// Streaming
	stream     Stream
	frames     FrameSource
	timer      ticker
	flashlight bool
	decoding   bool
}

// Option configures a Scanner
type Option func(*Scanner)

// WithDecoder replaces the default QR decoder
func WithDecoder(d Decoder) Option {
	return func(s *Scanner) {
		s.decoder = d
	}
}

// New creates a scanner with fail-fast validation.
//
// Zero fields of cfg take their DefaultConfig values. A nil host discards events.
//
// Returns an error if camera is nil or cfg holds invalid values.
func New(cfg Config, camera Camera, host Host, opts ...Option) (*Scanner, error) {
	if camera == nil {
		return nil, fmt.Errorf("scanner: camera is required")
	}

	def := DefaultConfig()
	if cfg.SampleInterval == 0 {
		cfg.SampleInterval = def.SampleInterval
	}
	if cfg.FrameRate == 0 {
		cfg.FrameRate = def.FrameRate
	}
	if cfg.FacingMode == "" {
		cfg.FacingMode = def.FacingMode
	}
	if cfg.AcquireTimeout == 0 {
		cfg.AcquireTimeout = def.AcquireTimeout
	}
	if cfg.DeviceTimeout == 0 {
		cfg.DeviceTimeout = def.DeviceTimeout
	}

	if cfg.SampleInterval < 0 {
		return nil, fmt.Errorf("scanner: invalid sample interval %s", cfg.SampleInterval)
	}
	if cfg.FrameRate < 0 || cfg.FrameRate > 120 {
		return nil, fmt.Errorf("scanner: invalid frame rate %.2f (must be 0-120)", cfg.FrameRate)
	}
	if cfg.FacingMode != FacingEnvironment && cfg.FacingMode != FacingUser {
		return nil, fmt.Errorf("scanner: invalid facing mode %q", cfg.FacingMode)
	}
	if cfg.AcquireTimeout < 0 || cfg.DeviceTimeout < 0 {
		return nil, fmt.Errorf("scanner: timeouts must not be negative")
	}

	if host == nil {
		host = HostFuncs{}
	}

	s := &Scanner{
		cfg:       cfg,
		camera:    camera,
		host:      host,
		newTicker: newTimeTicker,
		inbox:     make(chan message, inboxSize),
		surface:   surface.New(),
		status:    Status{Phase: PhaseIdle},
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.decoder == nil {
		d, err := NewDecoder(DecoderConfig{})
		if err != nil {
			return nil, err
		}
		s.decoder = d
	}

	slog.Info("scanner: created",
		"sample_interval", cfg.SampleInterval,
		"frame_rate", cfg.FrameRate,
		"facing_mode", cfg.FacingMode,
		"continue_on_decode_error", cfg.ContinueOnDecodeError,
	)

	return s, nil
}

// Run drives the scanner until ctx is cancelled.
//
// A session still active at cancellation is torn down (tracks stopped,
// onClosed emitted) before Run returns. Run may be called again after it
// returns; the scanner then resumes from the last phase.
//
// Returns ErrAlreadyRunning if another Run is active, nil otherwise.
func (s *Scanner) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.done = make(chan struct{})
	s.runDone = s.done
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		close(s.done)
		s.mu.Unlock()

		// No post can start once done is closed; wait for those already
		// sending and release whatever they left behind.
		s.posting.Wait()
		s.drainInbox()

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.drainInbox()
	slog.Info("scanner: driver started", "phase", s.st.phase.String())

	for {
		select {
		case <-ctx.Done():
			s.teardown("shutdown")
			s.publishStatus()
			slog.Info("scanner: driver stopped",
				"sessions_started", atomic.LoadUint64(&s.sessionsStarted),
				"scans", atomic.LoadUint64(&s.scans),
			)
			return nil

		case msg := <-s.inbox:
			s.handle(ctx, msg)

		case <-s.readyC():
			s.armTimer()

		case <-s.tickC():
			s.tick(ctx)
		}
		s.publishStatus()
	}
}

// Start begins a session: request a camera stream and, once it is held,
// sample frames until a symbol decodes or the session is closed.
//
// Returns ErrNotIdle (and changes nothing) while a session is acquiring or
// streaming, and ErrNotRunning when Run is not active.
func (s *Scanner) Start(ctx context.Context) error {
	return s.do(ctx, opStart)
}

// Close ends the active session, releasing the stream. Closing when no
// session is active is a no-op.
func (s *Scanner) Close(ctx context.Context) error {
	return s.do(ctx, opClose)
}

// ToggleFlashlight switches the torch of the held stream.
//
// Returns ErrNotStreaming outside the streaming phase. A device failure is
// reported to the host and returned as a KindDeviceControlFailed *Error;
// the phase is unchanged either way.
func (s *Scanner) ToggleFlashlight(ctx context.Context) error {
	return s.do(ctx, opToggleFlashlight)
}

// Status returns a snapshot of the scanner.
//
// Thread-safe - can be called from any goroutine, including Host callbacks.
func (s *Scanner) Status() Status {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()

	st.Stats = s.Stats()
	return st
}

// Phase returns the current phase
func (s *Scanner) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.Phase
}

// Stats returns current scanner statistics
//
// Thread-safe - uses atomic operations for counters.
func (s *Scanner) Stats() Stats {
	return Stats{
		SessionsStarted:   atomic.LoadUint64(&s.sessionsStarted),
		Scans:             atomic.LoadUint64(&s.scans),
		Ticks:             atomic.LoadUint64(&s.ticks),
		TicksSkipped:      atomic.LoadUint64(&s.ticksSkipped),
		DecodeAttempts:    atomic.LoadUint64(&s.decodeAttempts),
		DecodeNotFound:    atomic.LoadUint64(&s.decodeNotFound),
		Errors:            atomic.LoadUint64(&s.errorsReported),
		StaleResults:      atomic.LoadUint64(&s.staleResults),
		LastDecodeLatency: time.Duration(atomic.LoadInt64(&s.lastLatency)),
	}
}

// do posts a command and waits for the driver to handle it
func (s *Scanner) do(ctx context.Context, op commandOp) error {
	s.mu.RLock()
	running, done := s.running, s.done
	s.mu.RUnlock()

	if !running {
		return ErrNotRunning
	}

	reply := make(chan error, 1)
	select {
	case s.inbox <- command{op: op, reply: reply}:
	case <-done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers a completion to the driver of the Run that spawned it.
// Returns false if that Run has already exited.
func (s *Scanner) post(done <-chan struct{}, msg message) bool {
	s.mu.RLock()
	select {
	case <-done:
		s.mu.RUnlock()
		return false
	default:
	}
	s.posting.Add(1)
	s.mu.RUnlock()
	defer s.posting.Done()

	select {
	case s.inbox <- msg:
		return true
	case <-done:
		return false
	}
}

// drainInbox discards queued messages, stopping any stream they carry
func (s *Scanner) drainInbox() {
	for {
		select {
		case msg := <-s.inbox:
			switch m := msg.(type) {
			case command:
				m.reply <- ErrNotRunning
			case acquired:
				stopTracks(m.stream)
			}
		default:
			return
		}
	}
}

func (s *Scanner) handle(ctx context.Context, msg message) {
	switch m := msg.(type) {
	case command:
		err := s.handleCommand(ctx, m.op)
		s.publishStatus()
		m.reply <- err
	case acquired:
		s.handleAcquired(m)
	case decoded:
		s.handleDecoded(m)
	}
}

func (s *Scanner) handleCommand(ctx context.Context, op commandOp) error {
	switch op {
	case opStart:
		return s.start(ctx)
	case opClose:
		s.teardown("closed by host")
		return nil
	case opToggleFlashlight:
		return s.toggleFlashlight(ctx)
	default:
		return fmt.Errorf("scanner: unknown command %d", op)
	}
}

func (s *Scanner) start(ctx context.Context) error {
	switch s.st.phase {
	case PhaseIdle:
	case PhaseClosed:
		s.st = session{phase: PhaseIdle}
	default:
		slog.Debug("scanner: start ignored, session active",
			"session_id", s.st.id,
			"phase", s.st.phase.String(),
		)
		return ErrNotIdle
	}

	s.gen++
	acquireCtx, cancel := context.WithTimeout(ctx, s.cfg.AcquireTimeout)
	s.st = session{
		phase:         PhaseAcquiring,
		id:            uuid.New().String(),
		gen:           s.gen,
		cancelAcquire: cancel,
	}
	atomic.AddUint64(&s.sessionsStarted, 1)

	off := false
	constraints := Constraints{
		FacingMode: s.cfg.FacingMode,
		FrameRate:  s.cfg.FrameRate,
		Torch:      &off,
	}

	gen, done := s.gen, s.runDone
	go func() {
		defer cancel()
		stream, err := s.camera.Acquire(acquireCtx, constraints)
		if !s.post(done, acquired{gen: gen, stream: stream, err: err}) {
			stopTracks(stream)
		}
	}()

	slog.Info("scanner: session started",
		"session_id", s.st.id,
		"facing_mode", constraints.FacingMode,
		"frame_rate", constraints.FrameRate,
	)
	return nil
}

func (s *Scanner) handleAcquired(m acquired) {
	if s.st.phase != PhaseAcquiring || m.gen != s.st.gen {
		atomic.AddUint64(&s.staleResults, 1)
		stopTracks(m.stream)
		slog.Debug("scanner: stale acquisition result ignored", "generation", m.gen)
		return
	}
	s.st.cancelAcquire = nil

	err := m.err
	var tracks []VideoTrack
	if err == nil {
		if m.stream == nil {
			err = fmt.Errorf("camera returned no stream")
		} else if tracks = m.stream.VideoTracks(); len(tracks) == 0 {
			err = ErrNoVideoTrack
		}
	}

	if err != nil {
		stopTracks(m.stream)
		s.report(NewError(KindAcquisitionFailed, err))
		s.teardown("acquisition failed")
		return
	}

	s.st.phase = PhaseStreaming
	s.st.stream = m.stream
	s.st.frames = tracks[0].Frames()

	slog.Info("scanner: stream acquired",
		"session_id", s.st.id,
		"stream_id", m.stream.ID(),
		"video_tracks", len(tracks),
	)
}

// readyC is the frame-available signal while streaming without a timer
func (s *Scanner) readyC() <-chan struct{} {
	if s.st.phase != PhaseStreaming || s.st.timer != nil || s.st.frames == nil {
		return nil
	}
	return s.st.frames.Ready()
}

func (s *Scanner) tickC() <-chan time.Time {
	if s.st.phase != PhaseStreaming || s.st.timer == nil {
		return nil
	}
	return s.st.timer.C()
}

func (s *Scanner) armTimer() {
	s.st.timer = s.newTicker(s.cfg.SampleInterval)
	slog.Debug("scanner: first frame available, sampling armed",
		"session_id", s.st.id,
		"interval", s.cfg.SampleInterval,
	)
}

func (s *Scanner) tick(ctx context.Context) {
	atomic.AddUint64(&s.ticks, 1)

	if s.st.decoding {
		atomic.AddUint64(&s.ticksSkipped, 1)
		slog.Debug("scanner: tick skipped, decode in flight", "session_id", s.st.id)
		return
	}

	img, ok := s.st.frames.Latest()
	if !ok || img.Bounds().Empty() {
		atomic.AddUint64(&s.ticksSkipped, 1)
		return
	}

	src := img.Bounds()
	w, h := BoundedResolution(src.Dx(), src.Dy())
	s.surface.Render(img, w, h)
	sample := FrameSample{
		Width:  w,
		Height: h,
		Pix:    s.surface.ReadRGBA(image.Rect(0, 0, w, h)),
	}

	s.st.decoding = true
	atomic.AddUint64(&s.decodeAttempts, 1)

	gen, done, decoder := s.st.gen, s.runDone, s.decoder
	go func() {
		started := time.Now()
		out, err := decoder.Decode(ctx, luma.FromRGBA(sample.Pix), sample.Width, sample.Height)
		if err == nil {
			out.Width, out.Height = sample.Width, sample.Height
			if out.DecodedAt.IsZero() {
				out.DecodedAt = time.Now()
			}
		}
		s.post(done, decoded{gen: gen, outcome: out, err: err, latency: time.Since(started)})
	}()
}

func (s *Scanner) handleDecoded(m decoded) {
	if s.st.phase != PhaseStreaming || m.gen != s.st.gen {
		atomic.AddUint64(&s.staleResults, 1)
		slog.Debug("scanner: stale decode result ignored", "generation", m.gen)
		return
	}
	s.st.decoding = false
	atomic.StoreInt64(&s.lastLatency, int64(m.latency))

	if m.err == nil {
		atomic.AddUint64(&s.scans, 1)
		out := m.outcome
		s.lastResult = &out

		slog.Info("scanner: code decoded",
			"session_id", s.st.id,
			"format", out.Format,
			"latency", m.latency,
		)
		s.host.OnScanned(s.st.id, out)
		s.teardown("scanned")
		return
	}

	e := asError(m.err, KindDecodeEngineError)
	if e.Kind == KindDecodeNotFound {
		atomic.AddUint64(&s.decodeNotFound, 1)
		return
	}

	s.report(e)
	if !s.cfg.ContinueOnDecodeError {
		s.teardown("decode failed")
	}
}

func (s *Scanner) toggleFlashlight(ctx context.Context) error {
	if s.st.phase != PhaseStreaming {
		return ErrNotStreaming
	}

	on := !s.st.flashlight
	baseline := Constraints{FacingMode: s.cfg.FacingMode, FrameRate: s.cfg.FrameRate}

	deviceCtx, cancel := context.WithTimeout(ctx, s.cfg.DeviceTimeout)
	err := SetTorch(deviceCtx, s.st.stream, on, baseline)
	cancel()

	if err != nil {
		e := asError(err, KindDeviceControlFailed)
		s.report(e)
		return e
	}

	s.st.flashlight = on
	slog.Info("scanner: flashlight toggled", "session_id", s.st.id, "on", on)
	return nil
}

// report emits an error to the host for the current session
func (s *Scanner) report(e *Error) {
	atomic.AddUint64(&s.errorsReported, 1)
	slog.Warn("scanner: error reported",
		"session_id", s.st.id,
		"kind", e.Kind.String(),
		"error", e.Message,
	)
	s.host.OnError(s.st.id, e)
}

// teardown releases everything the session holds and emits onClosed.
// No-op unless a session is acquiring or streaming.
func (s *Scanner) teardown(reason string) {
	st := s.st
	if st.phase != PhaseAcquiring && st.phase != PhaseStreaming {
		return
	}

	if st.cancelAcquire != nil {
		st.cancelAcquire()
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	stopTracks(st.stream)

	s.st = session{phase: PhaseClosed}

	slog.Info("scanner: session closed",
		"session_id", st.id,
		"reason", reason,
		"from_phase", st.phase.String(),
	)
	s.host.OnClosed(st.id)
}

func (s *Scanner) publishStatus() {
	s.mu.Lock()
	s.status = Status{
		Phase:      s.st.phase,
		SessionID:  s.st.id,
		Flashlight: s.st.flashlight,
		LastResult: s.lastResult,
	}
	s.mu.Unlock()
}

type commandOp int

const (
	opStart commandOp = iota
	opClose
	opToggleFlashlight
)

// message is anything the driver's inbox carries
type message interface{}

type command struct {
	op    commandOp
	reply chan error
}

type acquired struct {
	gen    uint64
	stream Stream
	err    error
}

type decoded struct {
	gen     uint64
	outcome Outcome
	err     error
	latency time.Duration
}

// ticker is the periodic sample timer
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func newTimeTicker(d time.Duration) ticker {
	return timeTicker{t: time.NewTicker(d)}
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }
