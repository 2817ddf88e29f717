package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// SessionState is the lifecycle state of an interactive login session.
type SessionState string

const (
	SessionStarting      SessionState = "starting"
	SessionWaiting       SessionState = "waiting_for_login"
	SessionAuthenticated SessionState = "authenticated"
	SessionTimedOut      SessionState = "timed_out"
	SessionTerminated    SessionState = "terminated"
)

// InteractiveSession is a temporarily spawned, remotely-inspectable browser
// used for human-assisted authentication. It is exclusively owned by the
// InteractiveLoginController and must reach the terminated state on every
// code path that created it.
type InteractiveSession struct {
	DebugPort int
	StartedAt time.Time
	Deadline  time.Time

	cmd      *exec.Cmd
	stdout   *os.File
	stderr   *os.File
	state    SessionState
	waited   chan error
	stopOnce sync.Once
}

// waitChan returns the channel that yields the process's Wait result,
// starting the reaper goroutine on first use. Wait may only be called once
// per process; every consumer goes through this channel.
func (s *InteractiveSession) waitChan() chan error {
	if s.waited == nil && s.cmd != nil && s.cmd.Process != nil {
		s.waited = make(chan error, 1)
		go func() { s.waited <- s.cmd.Wait() }()
	}
	return s.waited
}

// State returns the session's current lifecycle state.
func (s *InteractiveSession) State() SessionState { return s.state }

// Pid returns the spawned browser's process ID, or 0 before launch.
func (s *InteractiveSession) Pid() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// InteractiveLoginController spawns, polls and terminates human-assisted
// authentication sessions.
type InteractiveLoginController struct {
	run *RunContext
	rec *StepRecorder

	ChromePath    string
	LaunchTimeout time.Duration // ceiling for the DevTools endpoint to answer
	PollInterval  time.Duration // sleep between authentication probes
	StopTimeout   time.Duration // SIGTERM grace before SIGKILL

	httpClient *http.Client
}

// NewInteractiveLoginController creates a controller with production
// defaults.
func NewInteractiveLoginController(run *RunContext, rec *StepRecorder, chromePath string) *InteractiveLoginController {
	return &InteractiveLoginController{
		run:           run,
		rec:           rec,
		ChromePath:    chromePath,
		LaunchTimeout: 20 * time.Second,
		PollInterval:  5 * time.Second,
		StopTimeout:   10 * time.Second,
		httpClient:    &http.Client{Timeout: 2 * time.Second},
	}
}

// Start launches a browser bound to the same persistent profile used by
// normal automation, with its debugging interface restricted to loopback.
// Process output goes to cdp_chrome.out / cdp_chrome.err in the artifact
// directory. A launch that does not produce a reachable DevTools endpoint
// within LaunchTimeout is a LaunchFailure, never a waiting state.
func (c *InteractiveLoginController) Start(profileDir string, debugPort int, loginURL string) (*InteractiveSession, error) {
	outPath := filepath.Join(c.run.DebugDir, "cdp_chrome.out")
	errPath := filepath.Join(c.run.DebugDir, "cdp_chrome.err")

	stdout, err := os.OpenFile(outPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, &LaunchFailure{Reason: "cannot open process log", Err: err}
	}
	stderr, err := os.OpenFile(errPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		stdout.Close()
		return nil, &LaunchFailure{Reason: "cannot open process log", Err: err}
	}

	cmd := exec.Command(c.ChromePath,
		"--headless=new",
		"--disable-gpu",
		"--no-sandbox",
		"--disable-dev-shm-usage",
		"--remote-debugging-address=127.0.0.1",
		fmt.Sprintf("--remote-debugging-port=%d", debugPort),
		"--user-data-dir="+profileDir,
		loginURL,
	)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Own process group so teardown reaps Chrome's children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	session := &InteractiveSession{
		DebugPort: debugPort,
		StartedAt: time.Now(),
		cmd:       cmd,
		stdout:    stdout,
		stderr:    stderr,
		state:     SessionStarting,
	}

	c.rec.Record("interactive_login_start", StepOK, map[string]any{
		"debug_port": debugPort,
		"login_url":  loginURL,
	})

	if err := cmd.Start(); err != nil {
		session.state = SessionTerminated
		stdout.Close()
		stderr.Close()
		c.rec.Record("interactive_login_start", StepFail, map[string]any{"error": err.Error()})
		return nil, &LaunchFailure{Reason: "process launch failed", Err: err}
	}
	session.waitChan()

	if err := c.awaitEndpoint(session); err != nil {
		c.Stop(session)
		c.rec.Record("interactive_login_start", StepFail, map[string]any{"error": err.Error()})
		return nil, err
	}

	session.state = SessionWaiting
	c.recordOperatorInstructions(debugPort)
	return session, nil
}

// awaitEndpoint polls the DevTools endpoint until it answers or the launch
// ceiling elapses.
func (c *InteractiveLoginController) awaitEndpoint(session *InteractiveSession) error {
	endpoint := fmt.Sprintf("http://127.0.0.1:%d/json/version", session.DebugPort)
	deadline := time.Now().Add(c.LaunchTimeout)

	for time.Now().Before(deadline) {
		select {
		case <-session.waitChan():
			return &LaunchFailure{Reason: "browser process exited during startup"}
		default:
		}
		resp, err := c.httpClient.Get(endpoint)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < 500 {
				return nil
			}
		}
		time.Sleep(250 * time.Millisecond)
	}
	return &LaunchFailure{Reason: fmt.Sprintf("DevTools endpoint not reachable within %s", c.LaunchTimeout)}
}

// recordOperatorInstructions writes exact, literal connection instructions
// into the step log. The remote access channel itself is out of scope; the
// operator runs these by hand.
func (c *InteractiveLoginController) recordOperatorInstructions(debugPort int) {
	tunnel := fmt.Sprintf(
		`aws ssm start-session --region us-east-1 --target <INSTANCE_ID> `+
			`--document-name AWS-StartPortForwardingSession `+
			`--parameters '{"portNumber":["%d"],"localPortNumber":["%d"]}'`,
		debugPort, debugPort)
	localURL := fmt.Sprintf("http://127.0.0.1:%d", debugPort)

	c.rec.Record("operator_instructions", StepOK, map[string]any{
		"tunnel_command": tunnel,
		"local_url":      localURL,
		"inspect":        "click 'inspect' on the platform tab, then enable 'Show Screencast'",
		"note":           "complete login / checkpoint / 2FA as needed, leave the screencast open",
	})

	c.run.Printf("Interactive login required.")
	c.run.Printf("On your laptop, start port-forwarding: %s", tunnel)
	c.run.Printf("Then open: %s", localURL)
	c.run.Printf("Click 'inspect' on the platform tab and enable 'Show Screencast'.")
	c.run.Printf("Complete login / checkpoint / 2FA as needed, then leave the screencast open.")
}

// WaitForLogin polls the authentication probe until it succeeds or the
// timeout elapses. The probe is cheap by design (cookie presence, not a
// full page classification). Transient probe failures are logged and
// polling continues; they never abort an otherwise-successful human login.
// A heartbeat step is recorded each tick so the step log never goes silent
// while waiting on a human.
func (c *InteractiveLoginController) WaitForLogin(session *InteractiveSession, check CheckFunc, timeout time.Duration) SessionState {
	session.state = SessionWaiting
	session.Deadline = time.Now().Add(timeout)

	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	for {
		if time.Now().After(session.Deadline) {
			session.state = SessionTimedOut
			c.dumpTimeoutSnapshot(session)
			c.rec.Record("interactive_login_wait", StepFail, map[string]any{
				"result":  "timed_out",
				"waited":  time.Since(session.StartedAt).Round(time.Second).String(),
				"timeout": timeout.String(),
			})
			return SessionTimedOut
		}

		ok, err := check()
		if err != nil {
			// Transient: keep polling.
			c.rec.Record("interactive_login_wait", StepWarn, map[string]any{
				"transient_error": err.Error(),
			})
		} else if ok {
			session.state = SessionAuthenticated
			c.rec.Record("interactive_login_wait", StepOK, map[string]any{
				"result": "authenticated",
				"waited": time.Since(session.StartedAt).Round(time.Second).String(),
			})
			return SessionAuthenticated
		} else {
			c.rec.Record("interactive_login_wait", StepOK, map[string]any{
				"result":    "waiting",
				"remaining": time.Until(session.Deadline).Round(time.Second).String(),
			})
		}

		<-ticker.C
	}
}

// dumpTimeoutSnapshot captures the page the human was stuck on before the
// session is torn down. Best-effort; the browser may already be gone.
func (c *InteractiveLoginController) dumpTimeoutSnapshot(session *InteractiveSession) {
	if session.DebugPort <= 0 {
		return
	}
	parent, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ctx, detach := AttachRemote(parent, session.DebugPort)
	defer detach()
	NewArtifactDumper(c.run, c.rec).Dump(ctx, remotePage{}, "login_timeout")
}

// Stop tears the session down. Idempotent; invoked on every exit path. The
// process group gets SIGTERM, a bounded wait, then SIGKILL.
func (c *InteractiveLoginController) Stop(session *InteractiveSession) {
	if session == nil {
		return
	}
	session.stopOnce.Do(func() {
		if pid := session.Pid(); pid > 0 && session.cmd.ProcessState == nil {
			syscall.Kill(-pid, syscall.SIGTERM)

			select {
			case <-session.waitChan():
			case <-time.After(c.StopTimeout):
				syscall.Kill(-pid, syscall.SIGKILL)
				<-session.waitChan()
			}
		}
		if session.stdout != nil {
			session.stdout.Close()
		}
		if session.stderr != nil {
			session.stderr.Close()
		}
		session.state = SessionTerminated
		c.rec.Record("interactive_login_stop", StepOK, nil)
	})
}
