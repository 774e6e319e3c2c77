package supervisor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/forgebench/infersupervisor/internal/apierrors"
	"github.com/forgebench/infersupervisor/internal/applog"
	"github.com/forgebench/infersupervisor/internal/healthprobe"
	"github.com/forgebench/infersupervisor/internal/logsink"
	"github.com/forgebench/infersupervisor/internal/process"
)

// Timeouts bundles the two durations §5 calls out by name.
type Timeouts struct {
	ServerStart time.Duration // default 60s
	ServerStop  time.Duration // default 10s
}

func DefaultTimeouts() Timeouts {
	return Timeouts{ServerStart: 60 * time.Second, ServerStop: 10 * time.Second}
}

// BinaryResolver locates the on-disk path of a named server binary. It is
// an external collaborator (§1 "Binary acquisition... out of scope") —
// only its contract is specified here.
type BinaryResolver interface {
	Resolve(ctx context.Context, binaryName string) (string, error)
}

// ModelResolver locates the on-disk path and size of a model by ID. It is
// an external collaborator (§1 "Model download and on-disk storage...
// out of scope") — only its contract is specified here.
type ModelResolver interface {
	Resolve(ctx context.Context, modelID string) (path string, sizeBytes int64, err error)
}

// Variant supplies the binary-specific knowledge a concrete supervisor
// needs: its binary name, default port, and argv construction (§2:
// "LlamaSupervisor, DiffusionSupervisor — concrete supervisors; each knows
// its binary's argv construction, default port, and readiness semantics").
type Variant interface {
	Name() string // "llama" | "diffusion", used in logs and error messages
	BinaryName() string
	DefaultPort() int
	BuildArgv(binaryPath, modelPath string, port int, cfg Config) []string
}

// Supervisor is the shared lifecycle state machine of §4.1, parameterized
// by a Variant. LlamaSupervisor and DiffusionSupervisor are thin
// constructors around this type.
type Supervisor struct {
	variant  Variant
	binaries BinaryResolver
	models   ModelResolver
	timeouts Timeouts
	prober   *healthprobe.Prober
	sink     *logsink.Sink

	events *events

	mu        sync.Mutex
	status    Status
	health    HealthStatus
	pid       *int
	port      int
	startedAt *time.Time
	lastError string
	config    *Config
	handle    *process.Handle
}

// New constructs a Supervisor for the given variant. logPath is the file
// the LogSink writes to; it is initialized lazily on first Start.
func New(variant Variant, binaries BinaryResolver, models ModelResolver, logPath string, timeouts Timeouts) *Supervisor {
	return &Supervisor{
		variant:  variant,
		binaries: binaries,
		models:   models,
		timeouts: timeouts,
		prober:   healthprobe.New(),
		sink:     logsink.New(logPath),
		events:   newEvents(),
		status:   StatusStopped,
		health:   HealthUnknown,
	}
}

// Start transitions stopped|crashed → starting → running (§4.1).
func (s *Supervisor) Start(ctx context.Context, cfg Config) (Info, error) {
	if err := cfg.Validate(); err != nil {
		return Info{}, err
	}

	// Reserve the starting state atomically with the stopped/crashed check
	// so a second concurrent Start can't race past it during the long
	// resolve/spawn/WaitReady window below (§5: start/stop/restart are
	// mutually exclusive). Any early return between here and the actual
	// spawn reverts to the prior status instead of leaving it stuck in
	// starting.
	s.mu.Lock()
	if s.status != StatusStopped && s.status != StatusCrashed {
		s.mu.Unlock()
		return Info{}, apierrors.Server(apierrors.ReasonAlreadyRunning, fmt.Sprintf("%s is already %s", s.variant.Name(), s.status))
	}
	previous := s.status
	s.status = StatusStarting
	s.mu.Unlock()
	s.events.statusChange.emit(StatusChangeEvent{New: StatusStarting, Old: previous})

	port := cfg.Port
	if port == 0 {
		port = s.variant.DefaultPort()
	}

	if s.prober.IsResponding(ctx, port, 2*time.Second) {
		s.transition(previous)
		return Info{}, PortInUseError(port)
	}

	binaryPath, err := s.binaries.Resolve(ctx, s.variant.BinaryName())
	if err != nil {
		s.transition(previous)
		return Info{}, BinaryError("failed to resolve binary", err)
	}

	modelPath, _, err := s.models.Resolve(ctx, cfg.ModelID)
	if err != nil {
		s.transition(previous)
		return Info{}, ModelNotFoundError(cfg.ModelID)
	}

	if err := s.sink.Initialize(); err != nil {
		s.transition(previous)
		return Info{}, apierrors.Wrap(apierrors.CodeFileSystemError, "initialize log sink", err)
	}

	s.mu.Lock()
	s.port = port
	s.lastError = ""
	s.mu.Unlock()

	argv := s.variant.BuildArgv(binaryPath, modelPath, port, cfg)

	startCtx, cancelStart := context.WithCancel(ctx)
	defer cancelStart()

	handle := process.New()
	handle.OnStdoutLine = func(line string) { s.ingest(line, false) }
	handle.OnStderrLine = func(line string) { s.ingest(line, true) }
	handle.OnExit = func(info process.ExitInfo) {
		s.onChildExit(info)
		cancelStart()
	}

	if err := handle.Start(process.Spec{Path: binaryPath, Args: argv}); err != nil {
		s.transition(StatusCrashed)
		return Info{}, err
	}

	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()

	waitErr := s.prober.WaitReady(startCtx, port, s.timeouts.ServerStart, 100*time.Millisecond, 2*time.Second)

	s.mu.Lock()
	stillStarting := s.status == StatusStarting
	s.mu.Unlock()

	if !stillStarting {
		// The child exited while we were waiting (onChildExit already
		// transitioned to crashed); surface that failure instead of the
		// probe's timeout classification.
		return Info{}, apierrors.Serverf(apierrors.ReasonStartupTimeout, "%s exited before becoming ready", s.variant.Name())
	}

	if waitErr != nil {
		_ = handle.Kill(context.Background(), s.timeouts.ServerStop)
		s.transition(StatusCrashed)
		return Info{}, apierrors.Serverf(apierrors.ReasonStartupTimeout, "%s failed to become ready: %v", s.variant.Name(), waitErr)
	}

	now := time.Now()
	pid := handle.Pid()
	s.mu.Lock()
	s.pid = &pid
	s.startedAt = &now
	s.health = HealthOK
	cfgCopy := cfg
	s.config = &cfgCopy
	s.mu.Unlock()

	s.transition(StatusRunning)
	s.events.started.emit(struct{}{})

	return s.Info(), nil
}

// Stop is idempotent: a no-op when already stopped, otherwise it signals
// graceful termination and escalates to a forceful kill (§4.1).
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusStopped {
		s.mu.Unlock()
		return nil
	}
	handle := s.handle
	s.mu.Unlock()

	s.transition(StatusStopping)

	if handle != nil {
		if err := handle.Kill(ctx, s.timeouts.ServerStop); err != nil {
			applog.Warn().Str("server", s.variant.Name()).Err(err).Msg("force-kill reported an error; treating stop as complete")
		}
	}

	s.mu.Lock()
	s.pid = nil
	s.startedAt = nil
	s.handle = nil
	s.health = HealthUnknown
	s.mu.Unlock()

	s.transition(StatusStopped)
	s.events.stopped.emit(struct{}{})
	return nil
}

// Restart requires a prior successful Start; it stops then starts again
// with the last config, emitting `restarted` after success.
func (s *Supervisor) Restart(ctx context.Context) (Info, error) {
	s.mu.Lock()
	cfg := s.config
	s.mu.Unlock()

	if cfg == nil {
		return Info{}, apierrors.Server(apierrors.ReasonNoConfig, "no prior configuration to restart with")
	}

	if err := s.Stop(ctx); err != nil {
		return Info{}, err
	}

	info, err := s.Start(ctx, *cfg)
	if err != nil {
		return Info{}, err
	}

	s.events.restarted.emit(info)
	return info, nil
}

// GetStatus is a non-blocking accessor.
func (s *Supervisor) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Info is a non-blocking accessor returning a snapshot projection (§3).
func (s *Supervisor) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		Status:    s.status,
		Health:    s.health,
		PID:       s.pid,
		Port:      s.port,
		ModelID:   modelIDOf(s.config),
		StartedAt: s.startedAt,
		Error:     s.lastError,
	}
}

func modelIDOf(cfg *Config) string {
	if cfg == nil {
		return ""
	}
	return cfg.ModelID
}

// GetConfig returns the last successfully applied config, or nil.
func (s *Supervisor) GetConfig() *Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config == nil {
		return nil
	}
	cp := *s.config
	return &cp
}

func (s *Supervisor) IsRunning() bool { return s.GetStatus() == StatusRunning }
func (s *Supervisor) HasCrashed() bool { return s.GetStatus() == StatusCrashed }

// GetLogs returns up to `lines` trailing log lines. Never throws; an
// uninitialized or missing sink yields an empty slice (§4.1).
func (s *Supervisor) GetLogs(lines int) []string {
	if lines <= 0 {
		lines = 100
	}
	out, err := s.sink.Tail(lines)
	if err != nil {
		return []string{}
	}
	return out
}

// ClearLogs truncates the log sink; silent on failure.
func (s *Supervisor) ClearLogs() {
	_ = s.sink.Clear()
}

// Port returns the port this supervisor is configured to use (even while
// stopped, reflecting the last Start attempt or variant default).
func (s *Supervisor) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != 0 {
		return s.port
	}
	return s.variant.DefaultPort()
}

// Name returns the variant name ("llama" | "diffusion").
func (s *Supervisor) Name() string { return s.variant.Name() }

// transition validates and applies a status change, emitting `status`.
func (s *Supervisor) transition(next Status) {
	s.mu.Lock()
	old := s.status
	s.status = next
	s.mu.Unlock()

	if old == next {
		return
	}
	s.events.statusChange.emit(StatusChangeEvent{New: next, Old: old})
}

// onChildExit handles an unexpected exit observed while running or
// starting (§4.1's "unexpected child exit" and "while starting, if the
// child exits first" clauses).
func (s *Supervisor) onChildExit(info process.ExitInfo) {
	s.mu.Lock()
	status := s.status
	s.mu.Unlock()

	if status == StatusStopping || status == StatusStopped {
		// Expected exit from our own Stop() path; Stop() drives the
		// stopped transition itself.
		return
	}

	tail := s.GetLogs(50)

	var exitCode *int
	if info.Code != 0 {
		c := info.Code
		exitCode = &c
	}

	msg := fmt.Sprintf("%s exited unexpectedly (code=%d signal=%q)", s.variant.Name(), info.Code, info.Signal)

	s.mu.Lock()
	s.lastError = msg
	s.pid = nil
	s.startedAt = nil
	s.mu.Unlock()

	s.transition(StatusCrashed)
	s.events.crashed.emit(CrashDetails{
		Message:  msg,
		ExitCode: exitCode,
		Signal:   info.Signal,
		LogTail:  tail,
	})
}

// ingest writes one line from the child to the LogSink with an inferred
// level, and fans it out as a binary-log event (§4.1's log ingestion
// contract).
func (s *Supervisor) ingest(line string, fromStderr bool) {
	level := inferLevel(line, fromStderr)
	_ = s.sink.Append(line, level)
	s.events.binaryLog.emit(BinaryLogEvent{Message: line, Level: string(level)})
}

// inferLevel looks for a case-insensitive level tag substring near the
// start of the line; unknown lines default to info from stdout, warn from
// stderr (§4.1).
func inferLevel(line string, fromStderr bool) logsink.Level {
	lower := strings.ToLower(line)
	prefix := lower
	if len(prefix) > 32 {
		prefix = prefix[:32]
	}
	switch {
	case strings.Contains(prefix, "error"):
		return logsink.LevelError
	case strings.Contains(prefix, "warn"):
		return logsink.LevelWarn
	case strings.Contains(prefix, "debug"):
		return logsink.LevelDebug
	case strings.Contains(prefix, "info"):
		return logsink.LevelInfo
	}
	if fromStderr {
		return logsink.LevelWarn
	}
	return logsink.LevelInfo
}

// argInt / argBool are small helpers concrete variants use to build argv
// only when a pointer option was actually set by the caller.
func argInt(flag string, v *int) []string {
	if v == nil {
		return nil
	}
	return []string{flag, strconv.Itoa(*v)}
}

func argBool(flag string, v *bool) []string {
	if v == nil || !*v {
		return nil
	}
	return []string{flag}
}

