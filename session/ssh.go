package session

import (
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/Dr-Twilight/port-status-inspection/common"
)

const defaultSSHPort = 22

// Reads shorter than this with no new data mark the end of a reply.
const quietPeriod = 500 * time.Millisecond

// Timeout for the enable and prompt-probe exchanges.
const controlExchangeTimeout = 10 * time.Second

// Privilege escalation command for the supported dialects.
const enableCommand = "super"

var enableFailurePatterns = []string{
	"Permission denied",
	"Error:",
	"Invalid",
}

// SSHProvider - Session provider backed by an interactive SSH shell.
type SSHProvider struct{}

// Connect - Open an authenticated interactive shell to the device.
func (provider SSHProvider) Connect(device common.DeviceSpec) (Session, *ConnectError) {
	if strings.TrimSpace(device.Address) == "" {
		return nil, &ConnectError{Kind: ConnectMissingAddress}
	}
	if strings.TrimSpace(device.Username) == "" || device.Password == "" {
		return nil, &ConnectError{
			Kind: ConnectMalformedLogin,
			Err:  errors.New("username or password missing"),
		}
	}

	connectTimeout := time.Duration(device.ConnectTimeout * float64(time.Second))
	if connectTimeout <= 0 {
		connectTimeout = 15 * time.Second
	}
	sshConfig := ssh.ClientConfig{
		User:            device.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Auth:            []ssh.AuthMethod{ssh.Password(device.Password)},
		Timeout:         connectTimeout,
	}

	// Build full address
	port := uint(defaultSSHPort)
	if device.Port > 0 {
		port = device.Port
	}
	fullAddress := fmt.Sprintf("%v:%v", device.Address, port)

	// Open connection
	sshClient, err := ssh.Dial("tcp", fullAddress, &sshConfig)
	if err != nil {
		return nil, classifyDialError(err)
	}

	// Setup interactive shell
	sshSess, err := sshClient.NewSession()
	if err != nil {
		sshClient.Close()
		return nil, &ConnectError{Kind: ConnectUnknown, Err: errors.Wrap(err, "failed to start session")}
	}
	if err := sshSess.RequestPty("vt100", 80, 200, ssh.TerminalModes{}); err != nil {
		sshSess.Close()
		sshClient.Close()
		return nil, &ConnectError{Kind: ConnectUnknown, Err: errors.Wrap(err, "failed to request PTY")}
	}
	stdinWriter, err := sshSess.StdinPipe()
	if err != nil {
		sshSess.Close()
		sshClient.Close()
		return nil, &ConnectError{Kind: ConnectUnknown, Err: errors.Wrap(err, "failed to get STDIN pipe")}
	}
	stdoutReader, err := sshSess.StdoutPipe()
	if err != nil {
		sshSess.Close()
		sshClient.Close()
		return nil, &ConnectError{Kind: ConnectUnknown, Err: errors.Wrap(err, "failed to get STDOUT pipe")}
	}
	if err := sshSess.Shell(); err != nil {
		sshSess.Close()
		sshClient.Close()
		return nil, &ConnectError{Kind: ConnectUnknown, Err: errors.Wrap(err, "failed to start shell")}
	}

	shellSession := &sshSession{
		host:    device.Host,
		secret:  device.Secret,
		client:  sshClient,
		session: sshSess,
		stdin:   stdinWriter,
		chunks:  make(chan string, 256),
	}

	// Read the shell output in the background for the session's lifetime
	go func() {
		buffer := make([]byte, 4096)
		for {
			numBytes, err := stdoutReader.Read(buffer)
			if numBytes > 0 {
				shellSession.chunks <- string(buffer[:numBytes])
			}
			if err != nil {
				shellSession.markClosed()
				close(shellSession.chunks)
				return
			}
		}
	}()

	// Swallow the login banner so the first command reply starts clean
	shellSession.readUntilQuiet(connectTimeout)

	return shellSession, nil
}

func classifyDialError(err error) *ConnectError {
	if netError, ok := err.(net.Error); ok && netError.Timeout() {
		return &ConnectError{Kind: ConnectTransportTimeout, Err: err}
	}
	message := err.Error()
	if strings.Contains(message, "unable to authenticate") ||
		strings.Contains(message, "no supported methods remain") {
		return &ConnectError{Kind: ConnectAuthFailure, Err: err}
	}
	if strings.Contains(message, "connection refused") ||
		strings.Contains(message, "no route to host") ||
		strings.Contains(message, "network is unreachable") {
		return &ConnectError{Kind: ConnectUnreachable, Err: err}
	}
	return &ConnectError{Kind: ConnectUnknown, Err: err}
}

type sshSession struct {
	host    string
	secret  string
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	chunks  chan string

	closedMutex sync.Mutex
	closed      bool
	closeOnce   sync.Once
}

// SendAndWait - Send text and collect the reply until it goes quiet or the deadline passes.
func (shellSession *sshSession) SendAndWait(text string, timeout time.Duration) (string, error) {
	if shellSession.ChannelClosed() {
		return "", errors.New("channel is closed")
	}

	// Bare continuation keystrokes go out verbatim, commands get a newline
	payload := text
	if text != " " && !strings.HasSuffix(text, "\n") {
		payload = text + "\n"
	}
	if _, err := shellSession.stdin.Write([]byte(payload)); err != nil {
		shellSession.markClosed()
		return "", errors.Wrap(err, "failed to write to channel")
	}

	return shellSession.readUntilQuiet(timeout), nil
}

// Collect output chunks until a quiet period follows some output, or the deadline passes.
func (shellSession *sshSession) readUntilQuiet(timeout time.Duration) string {
	var builder strings.Builder
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		quiet := time.NewTimer(quietPeriod)
		select {
		case chunk, ok := <-shellSession.chunks:
			quiet.Stop()
			if !ok {
				shellSession.markClosed()
				return builder.String()
			}
			builder.WriteString(strings.Replace(chunk, "\r", "", -1))
		case <-quiet.C:
			// Keep waiting for the first output until the deadline
			if builder.Len() > 0 {
				return builder.String()
			}
		case <-deadline.C:
			quiet.Stop()
			return builder.String()
		}
	}
}

// ChannelClosed - Side-effect-free check, no probe is written.
func (shellSession *sshSession) ChannelClosed() bool {
	shellSession.closedMutex.Lock()
	defer shellSession.closedMutex.Unlock()
	return shellSession.closed
}

func (shellSession *sshSession) markClosed() {
	shellSession.closedMutex.Lock()
	defer shellSession.closedMutex.Unlock()
	shellSession.closed = true
}

// Enable - Privilege-escalate using the configured secret. No secret means nothing to do.
func (shellSession *sshSession) Enable() error {
	if shellSession.secret == "" {
		return nil
	}
	reply, err := shellSession.SendAndWait(enableCommand, controlExchangeTimeout)
	if err != nil {
		return errors.Wrap(err, "privilege escalation failed")
	}
	if strings.Contains(reply, "assword") {
		reply, err = shellSession.SendAndWait(shellSession.secret, controlExchangeTimeout)
		if err != nil {
			return errors.Wrap(err, "privilege escalation failed")
		}
	}
	for _, pattern := range enableFailurePatterns {
		if strings.Contains(reply, pattern) {
			return errors.Errorf("privilege escalation rejected: %v", strings.TrimSpace(reply))
		}
	}
	return nil
}

// FindPrompt - Probe with a bare newline and return the last line the device prints.
func (shellSession *sshSession) FindPrompt() (string, error) {
	reply, err := shellSession.SendAndWait("\n", controlExchangeTimeout)
	if err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimSpace(reply), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			return line, nil
		}
	}
	return "", errors.New("no prompt detected")
}

// Disconnect - Close the shell and connection. Safe to call twice, a channel
// already closed by the remote end is expected and not an error.
func (shellSession *sshSession) Disconnect() {
	shellSession.closeOnce.Do(func() {
		shellSession.markClosed()
		if err := shellSession.session.Close(); err != nil && !benignCloseError(err) {
			log.WithError(err).WithFields(log.Fields{
				"device": shellSession.host,
			}).Warn("Failed to close shell session")
		}
		if err := shellSession.client.Close(); err != nil && !benignCloseError(err) {
			log.WithError(err).WithFields(log.Fields{
				"device": shellSession.host,
			}).Warn("Failed to close connection")
		}
	})
}

func benignCloseError(err error) bool {
	message := err.Error()
	return strings.Contains(message, "EOF") ||
		strings.Contains(message, "use of closed network connection") ||
		strings.Contains(message, "channel closed")
}
