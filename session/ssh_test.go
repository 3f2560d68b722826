package session

import (
	"io"
	"io/ioutil"
	"os"
	"testing"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Dr-Twilight/port-status-inspection/common"
)

func TestMain(m *testing.M) {
	log.SetOutput(ioutil.Discard)
	os.Exit(m.Run())
}

type fakeNetError struct {
	timeout bool
	message string
}

func (err fakeNetError) Error() string   { return err.message }
func (err fakeNetError) Timeout() bool   { return err.timeout }
func (err fakeNetError) Temporary() bool { return false }

func TestClassifyDialError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind ConnectErrorKind
	}{
		{"timeout", fakeNetError{timeout: true, message: "dial tcp 10.0.0.1:22: i/o timeout"}, ConnectTransportTimeout},
		{"auth", errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password]"), ConnectAuthFailure},
		{"refused", fakeNetError{message: "dial tcp 10.0.0.1:22: connect: connection refused"}, ConnectUnreachable},
		{"no route", errors.New("dial tcp 10.0.0.1:22: connect: no route to host"), ConnectUnreachable},
		{"other", errors.New("ssh: handshake failed: read: connection reset by peer"), ConnectUnknown},
	}
	for _, testCase := range cases {
		connectError := classifyDialError(testCase.err)
		if connectError.Kind != testCase.kind {
			t.Errorf("%v: expected kind %v, got %v", testCase.name, testCase.kind, connectError.Kind)
		}
		if connectError.Err == nil {
			t.Errorf("%v: cause must be preserved", testCase.name)
		}
	}
}

func TestConnectMissingAddress(t *testing.T) {
	provider := SSHProvider{}
	device := common.DeviceSpec{Host: "sw1", Username: "admin", Password: "pw", DeviceType: common.DialectHuaweiVRP}
	sess, connectError := provider.Connect(device)
	if sess != nil || connectError == nil {
		t.Fatal("expected a connect error for a device without an address")
	}
	if connectError.Kind != ConnectMissingAddress {
		t.Errorf("expected missing-address kind, got %v", connectError.Kind)
	}
}

func TestConnectMalformedLogin(t *testing.T) {
	provider := SSHProvider{}
	device := common.DeviceSpec{Host: "sw1", Address: "10.0.0.1", DeviceType: common.DialectHuaweiVRP}
	sess, connectError := provider.Connect(device)
	if sess != nil || connectError == nil {
		t.Fatal("expected a connect error for a device without credentials")
	}
	if connectError.Kind != ConnectMalformedLogin {
		t.Errorf("expected malformed-login kind, got %v", connectError.Kind)
	}
}

func TestConnectErrorKindStrings(t *testing.T) {
	kinds := map[ConnectErrorKind]string{
		ConnectUnknown:           "unknown",
		ConnectMissingAddress:    "missing_address",
		ConnectUnreachable:       "unreachable",
		ConnectAuthFailure:       "auth_failure",
		ConnectEnableAuthFailure: "enable_auth_failure",
		ConnectTransportTimeout:  "transport_timeout",
		ConnectMalformedLogin:    "malformed_login",
	}
	for kind, expected := range kinds {
		if kind.String() != expected {
			t.Errorf("expected %q, got %q", expected, kind.String())
		}
	}
}

func TestConnectErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	connectError := &ConnectError{Kind: ConnectUnknown, Err: cause}
	if connectError.Unwrap() != cause {
		t.Error("expected Unwrap to return the cause")
	}
	if connectError.Error() == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestBenignCloseError(t *testing.T) {
	if !benignCloseError(io.EOF) {
		t.Error("EOF from an already-closed channel is expected")
	}
	if !benignCloseError(errors.New("close tcp 10.0.0.1:22: use of closed network connection")) {
		t.Error("double close is expected")
	}
	if benignCloseError(errors.New("broken pipe")) {
		t.Error("broken pipe is not benign")
	}
}
