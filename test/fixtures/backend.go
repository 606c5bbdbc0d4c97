// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
)

// BackendModeEnv switches a test binary into fake-backend mode. The value is
// one of the Mode constants.
const BackendModeEnv = "LAUNCHER_FIXTURE_BACKEND"

// Mode selects how the fake backend behaves.
type Mode string

const (
	// ModeServe listens on the backend port and exits cleanly on SIGTERM.
	ModeServe Mode = "serve"
	// ModeStubborn listens and ignores SIGTERM, so only a kill stops it.
	ModeStubborn Mode = "stubborn"
	// ModeCrash listens briefly, then exits with status 3.
	ModeCrash Mode = "crash"
)

// CrashExitCode is the status ModeCrash exits with.
const CrashExitCode = 3

// IsBackend reports whether this process was started as a fake backend.
func IsBackend() bool {
	return os.Getenv(BackendModeEnv) != ""
}

// RunBackend plays the backend and exits the process. Call it from
// TestMain before any tests run.
func RunBackend() {
	port := os.Getenv("BACKEND_PORT")
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", port))
	if err != nil {
		os.Exit(10)
	}
	go accept(ln)

	switch Mode(os.Getenv(BackendModeEnv)) {
	case ModeServe:
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT)
		<-sig
		_ = ln.Close()
		os.Exit(0)
	case ModeStubborn:
		signal.Ignore(syscall.SIGTERM, syscall.SIGINT)
		time.Sleep(10 * time.Minute)
		os.Exit(0)
	case ModeCrash:
		time.Sleep(300 * time.Millisecond)
		os.Exit(CrashExitCode)
	}
	os.Exit(11)
}

func accept(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_ = conn.Close()
	}
}

// Install is a packaged launcher layout whose Linux backend is the running
// test binary.
type Install struct {
	Dir string
}

// NewInstall lays out dir like a Linux release: the backend executable,
// the packaged index.html and the window icon.
func NewInstall(dir string) (*Install, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}

	backend := filepath.Join(dir, "release", "tridentframe_linux", "main")
	if err := os.MkdirAll(filepath.Dir(backend), 0o755); err != nil {
		return nil, err
	}
	if err := os.Symlink(exe, backend); err != nil {
		return nil, err
	}

	html := filepath.Join(dir, "release", "html")
	if err := os.MkdirAll(html, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(html, "index.html"), []byte("<h1>TridentFrame</h1>"), 0o644); err != nil {
		return nil, err
	}

	imgs := filepath.Join(dir, "imgs")
	if err := os.MkdirAll(imgs, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(imgs, "TridentFrame_Icon_200px.png"), []byte{0x89, 'P', 'N', 'G'}, 0o644); err != nil {
		return nil, err
	}

	return &Install{Dir: dir}, nil
}

// Backend is the packaged backend path.
func (i *Install) Backend() string {
	return filepath.Join(i.Dir, "release", "tridentframe_linux", "main")
}

// Content is the packaged index.html path.
func (i *Install) Content() string {
	return filepath.Join(i.Dir, "release", "html", "index.html")
}
