package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/dhruvsoni1802/browser-bridge/internal/cdp"
)

const (
	DefaultStartTimeout = 20 * time.Second
	stopGracePeriod     = 5 * time.Second
	readyPollInterval   = 100 * time.Millisecond
)

type ProcessStatus string

const (
	StatusStarting ProcessStatus = "starting"
	StatusRunning  ProcessStatus = "running"
	StatusStopped  ProcessStatus = "stopped"
	StatusFailed   ProcessStatus = "failed"
)

// Options configures Launch
type Options struct {
	BinaryPath string
	// Port is the debug port; zero allocates one from the pool
	Port         int
	Headful      bool
	ExtraFlags   []string
	StartTimeout time.Duration
	Logger       *slog.Logger
}

// Process is a locally launched browser
type Process struct {
	BinaryPath  string
	DebugPort   int
	UserDataDir string
	StartedAt   time.Time

	cmd      *exec.Cmd
	pool     *PortPool
	pooled   bool
	logger   *slog.Logger
	exited   chan struct{}
	waitErr  error
	mu       sync.Mutex
	status   ProcessStatus
	stopOnce sync.Once
	stopErr  error
}

// Launch starts a browser with a temporary profile and waits until its
// debug endpoint answers
func Launch(ctx context.Context, opts Options) (*Process, error) {
	return launch(ctx, opts, defaultPool)
}

func launch(ctx context.Context, opts Options, pool *PortPool) (*Process, error) {
	if opts.BinaryPath == "" {
		return nil, errors.New("browser binary path is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = DefaultStartTimeout
	}

	p := &Process{
		BinaryPath: opts.BinaryPath,
		DebugPort:  opts.Port,
		pool:       pool,
		exited:     make(chan struct{}),
		status:     StatusStarting,
	}

	if p.DebugPort == 0 {
		port, err := pool.Acquire()
		if err != nil {
			return nil, fmt.Errorf("failed to get free port: %w", err)
		}
		p.DebugPort = port
		p.pooled = true
	}
	p.logger = opts.Logger.With("debug_port", p.DebugPort)

	userDataDir, err := os.MkdirTemp("", "browser-bridge-*")
	if err != nil {
		p.releasePort()
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	p.UserDataDir = userDataDir

	p.cmd = exec.Command(p.BinaryPath, p.buildFlags(opts)...)
	if err := p.cmd.Start(); err != nil {
		p.setStatus(StatusFailed)
		p.cleanup()
		return nil, fmt.Errorf("failed to start browser process: %w", err)
	}
	p.StartedAt = time.Now()
	go func() {
		p.waitErr = p.cmd.Wait()
		close(p.exited)
	}()

	p.logger.Info("browser process started", "pid", p.PID(), "binary", p.BinaryPath)

	if err := p.waitReady(ctx, opts.StartTimeout); err != nil {
		p.setStatus(StatusFailed)
		p.Stop()
		return nil, err
	}

	p.setStatus(StatusRunning)
	return p, nil
}

// buildFlags constructs the command-line flags for Chrome
func (p *Process) buildFlags(opts Options) []string {
	flags := []string{
		fmt.Sprintf("--remote-debugging-port=%d", p.DebugPort),
		fmt.Sprintf("--user-data-dir=%s", p.UserDataDir),
		"--no-first-run",
		"--no-default-browser-check",
		"--no-sandbox",            // needed in containers
		"--disable-dev-shm-usage", // small /dev/shm in containers
	}
	if !opts.Headful {
		flags = append(flags, "--headless=new", "--disable-gpu")
	}
	flags = append(flags, opts.ExtraFlags...)
	return append(flags, "about:blank")
}

// waitReady polls /json/version until it answers, the process exits or
// timeout elapses
func (p *Process) waitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	discovery := cdp.NewDiscovery("127.0.0.1", p.DebugPort)
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		version, err := discovery.Version(ctx)
		if err == nil {
			p.logger.Info("browser ready", "browser", version.Browser, "protocol", version.ProtocolVersion)
			return nil
		}

		select {
		case <-p.exited:
			return fmt.Errorf("browser exited before its debug endpoint came up: %v", p.waitErr)
		case <-ctx.Done():
			return fmt.Errorf("browser debug endpoint not ready after %s: %w", timeout, err)
		case <-ticker.C:
		}
	}
}

// Stop terminates the browser: SIGTERM, then kill after a grace period.
// The profile directory and the port are released. Stop is idempotent.
func (p *Process) Stop() error {
	p.stopOnce.Do(func() {
		p.stopErr = p.stop()
	})
	return p.stopErr
}

func (p *Process) stop() error {
	defer p.cleanup()

	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}

	select {
	case <-p.exited:
		p.setStatus(StatusStopped)
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// no SIGTERM on this platform, or already gone
		p.cmd.Process.Kill()
	}

	select {
	case <-p.exited:
	case <-time.After(stopGracePeriod):
		p.logger.Warn("browser ignored SIGTERM, killing", "pid", p.PID())
		if err := p.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to force kill process: %w", err)
		}
		<-p.exited
	}

	p.setStatus(StatusStopped)
	p.logger.Info("browser process stopped")
	return nil
}

func (p *Process) cleanup() {
	if p.UserDataDir != "" {
		if err := os.RemoveAll(p.UserDataDir); err != nil {
			p.logger.Warn("failed to remove user data directory", "dir", p.UserDataDir, "error", err)
		}
	}
	p.releasePort()
}

func (p *Process) releasePort() {
	if p.pooled {
		p.pool.Release(p.DebugPort)
		p.pooled = false
	}
}

func (p *Process) setStatus(s ProcessStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = s
}

// Status returns the lifecycle state
func (p *Process) Status() ProcessStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Alive reports whether the process is still running
func (p *Process) Alive() bool {
	if p.cmd == nil || p.cmd.Process == nil {
		return false
	}
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// Exited is closed when the process exits
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// PID returns the process ID if the process was started
func (p *Process) PID() int {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Pid
	}
	return 0
}
