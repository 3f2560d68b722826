package inspect

import (
	"errors"
	"testing"
	"time"

	"github.com/Dr-Twilight/port-status-inspection/common"
	"github.com/Dr-Twilight/port-status-inspection/session"
)

func testCommandSet(commands ...string) common.CommandSet {
	return common.CommandSet{"huawei": commands}
}

func TestInspectConnectFailureClassified(t *testing.T) {
	runLog := newTestRunLog()
	provider := &fakeProvider{
		connectErr: &session.ConnectError{Kind: session.ConnectAuthFailure},
	}
	task := Task{
		Device:   testDevice("sw1"),
		Commands: testCommandSet("display port status"),
		Config:   testConfig(),
	}
	outcome := task.Inspect(provider)
	if outcome.Kind != OutcomeConnectFailure {
		t.Fatalf("expected connect failure, got %v", outcome.Kind)
	}
	if outcome.ConnectError != session.ConnectAuthFailure {
		t.Errorf("expected auth failure kind, got %v", outcome.ConnectError)
	}
	if failing := Summarize(runLog); len(failing) != 1 || failing[0] != "sw1" {
		t.Errorf("expected sw1 in the failure summary, got %v", failing)
	}
}

func TestInspectNoCommandsForDialect(t *testing.T) {
	newTestRunLog()
	fake := &fakeSession{}
	provider := &fakeProvider{sessions: map[string]*fakeSession{"sw1": fake}}
	task := Task{
		Device:   testDevice("sw1"),
		Commands: common.CommandSet{"hp_comware": {"display version"}},
		Config:   testConfig(),
	}
	outcome := task.Inspect(provider)
	if outcome.Kind != OutcomeSkipped {
		t.Fatalf("expected skipped outcome, got %v", outcome.Kind)
	}
	if fake.disconnects != 1 {
		t.Errorf("session must be closed exactly once, got %v", fake.disconnects)
	}
}

func TestInspectWhitespaceCommandsNeverSent(t *testing.T) {
	newTestRunLog()
	fake := &fakeSession{defaultReply: fakeReply{output: "ok\n"}}
	provider := &fakeProvider{sessions: map[string]*fakeSession{"sw1": fake}}
	task := Task{
		Device:   testDevice("sw1"),
		Commands: testCommandSet("   ", "\r\n", "display port status"),
		Config:   testConfig(),
	}
	outcome := task.Inspect(provider)
	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("expected success, got %v", outcome.Kind)
	}
	sent := fake.sentCommands()
	if len(sent) != 1 || sent[0] != "display port status" {
		t.Errorf("only the real command may be sent, sent %v", sent)
	}
}

func TestInspectChannelClosedStopsRemainingCommands(t *testing.T) {
	// Scenario: first command pages once then returns clean text, second
	// command's exchange fails and closes the channel, the third command
	// must never be sent.
	runLog := newTestRunLog()
	fake := &fakeSession{replies: []fakeReply{
		{output: "port summary\n--More--"},
		{output: "rest of summary\n"},
		{output: "", err: errors.New("connection reset"), closeAfter: true},
	}}
	provider := &fakeProvider{sessions: map[string]*fakeSession{"sw1": fake}}
	task := Task{
		Device:   testDevice("sw1"),
		Commands: testCommandSet("display port status", "display interface brief", "display version"),
		Config:   testConfig(),
	}
	outcome := task.Inspect(provider)
	if outcome.Kind != OutcomeTransportError {
		t.Fatalf("expected transport error, got %v", outcome.Kind)
	}
	for _, text := range fake.sentCommands() {
		if text == "display version" {
			t.Error("command after channel close must not be sent")
		}
	}
	if fake.disconnects == 0 {
		t.Error("session must be disconnected on early exit")
	}
	if failing := Summarize(runLog); len(failing) != 1 || failing[0] != "sw1" {
		t.Errorf("expected sw1 in the failure summary, got %v", failing)
	}
}

func TestInspectTaskBudgetExhausted(t *testing.T) {
	// A one second budget spent entirely on the first command: a timeout is
	// recorded, the session force-closed and no second command started.
	runLog := newTestRunLog()
	fake := &fakeSession{
		replies: []fakeReply{
			{output: "slow output\n", delay: 1100 * time.Millisecond},
		},
	}
	provider := &fakeProvider{sessions: map[string]*fakeSession{"sw1": fake}}
	config := testConfig()
	config.TaskTimeoutSeconds = 1
	task := Task{
		Device:   testDevice("sw1"),
		Commands: testCommandSet("display port status", "display version"),
		Config:   config,
	}
	outcome := task.Inspect(provider)
	if outcome.Kind != OutcomeTaskTimeout {
		t.Fatalf("expected task timeout, got %v", outcome.Kind)
	}
	for _, text := range fake.sentCommands() {
		if text == "display version" {
			t.Error("second command must not start after the budget is spent")
		}
	}
	// Force-close plus the deferred close, both must be safe
	if fake.disconnects != 2 {
		t.Errorf("expected idempotent double disconnect, got %v", fake.disconnects)
	}
	if failing := Summarize(runLog); len(failing) != 1 || failing[0] != "sw1" {
		t.Errorf("expected sw1 in the failure summary, got %v", failing)
	}
}

func TestInspectQuitClosesChannelAsExpected(t *testing.T) {
	runLog := newTestRunLog()
	fake := &fakeSession{replies: []fakeReply{
		{output: "", closeAfter: true},
	}}
	provider := &fakeProvider{sessions: map[string]*fakeSession{"sw1": fake}}
	task := Task{
		Device:   testDevice("sw1"),
		Commands: testCommandSet("quit", "display version"),
		Config:   testConfig(),
	}
	outcome := task.Inspect(provider)
	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("quit closing the channel is expected, got %v", outcome.Kind)
	}
	for _, text := range fake.sentCommands() {
		if text == "display version" {
			t.Error("commands after quit-close must not be sent")
		}
	}
	if failing := Summarize(runLog); len(failing) != 0 {
		t.Errorf("quit-close must not count as a failure, got %v", failing)
	}
}

func TestInspectQuitLeavesChannelOpen(t *testing.T) {
	newTestRunLog()
	fake := &fakeSession{
		replies: []fakeReply{
			{output: ""}, // quit without disconnect
		},
		defaultReply: fakeReply{output: "still here\n"},
	}
	provider := &fakeProvider{sessions: map[string]*fakeSession{"sw1": fake}}
	task := Task{
		Device:   testDevice("sw1"),
		Commands: testCommandSet("quit", "display version"),
		Config:   testConfig(),
	}
	outcome := task.Inspect(provider)
	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("expected success, got %v", outcome.Kind)
	}
	found := false
	for _, text := range fake.sentCommands() {
		if text == "display version" {
			found = true
		}
	}
	if !found {
		t.Error("inspection must continue after quit leaves the channel open")
	}
}

func TestInspectEnableFailure(t *testing.T) {
	runLog := newTestRunLog()
	fake := &fakeSession{enableErr: errors.New("privilege escalation rejected")}
	provider := &fakeProvider{sessions: map[string]*fakeSession{"sw1": fake}}
	device := testDevice("sw1")
	device.Secret = "enable-secret"
	task := Task{
		Device:   device,
		Commands: testCommandSet("display port status"),
		Config:   testConfig(),
	}
	outcome := task.Inspect(provider)
	if outcome.Kind != OutcomeConnectFailure {
		t.Fatalf("expected connect failure, got %v", outcome.Kind)
	}
	if outcome.ConnectError != session.ConnectEnableAuthFailure {
		t.Errorf("expected enable auth failure kind, got %v", outcome.ConnectError)
	}
	if len(fake.sentCommands()) != 0 {
		t.Errorf("no commands may run after a failed enable, sent %v", fake.sentCommands())
	}
	if failing := Summarize(runLog); len(failing) != 1 {
		t.Errorf("expected one failing device, got %v", failing)
	}
}

func TestInspectUnrecognizedCommandContinues(t *testing.T) {
	runLog := newTestRunLog()
	fake := &fakeSession{replies: []fakeReply{
		{output: "Error: Unrecognized command found at '^' position."},
		{output: "Version 5.170\n"},
	}}
	provider := &fakeProvider{sessions: map[string]*fakeSession{"sw1": fake}}
	task := Task{
		Device:   testDevice("sw1"),
		Commands: testCommandSet("display nonsense", "display version"),
		Config:   testConfig(),
	}
	outcome := task.Inspect(provider)
	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("an unrecognized command must be recovered locally, got %v", outcome.Kind)
	}
	sent := fake.sentCommands()
	if sent[len(sent)-1] != "display version" {
		t.Errorf("expected inspection to continue to the next command, sent %v", sent)
	}
	// The incompatible command still flags the device in the summary
	if failing := Summarize(runLog); len(failing) != 1 || failing[0] != "sw1" {
		t.Errorf("expected sw1 in the failure summary, got %v", failing)
	}
}

func TestInspectNoSecretSkipsEnable(t *testing.T) {
	newTestRunLog()
	fake := &fakeSession{
		enableErr:    errors.New("enable must not be called"),
		defaultReply: fakeReply{output: "ok\n"},
	}
	provider := &fakeProvider{sessions: map[string]*fakeSession{"sw1": fake}}
	task := Task{
		Device:   testDevice("sw1"), // no secret configured
		Commands: testCommandSet("display version"),
		Config:   testConfig(),
	}
	outcome := task.Inspect(provider)
	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("expected success without enable, got %v", outcome.Kind)
	}
}
