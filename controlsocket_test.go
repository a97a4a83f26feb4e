package filezilla

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/osirisinferi/filezilla/inputparser"
	"github.com/osirisinferi/filezilla/opstack"
	"github.com/osirisinferi/filezilla/ratebucket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine is a minimal Engine stub recording what the control socket
// sends upward, used across this file's tests.
type fakeEngine struct {
	notifications []any
	recvBytes     uint64
	sendBytes     uint64
	status        *TransferStatus
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{status: NewTransferStatus()}
}

func (f *fakeEngine) SendAsyncRequest(n any) { f.notifications = append(f.notifications, n) }

func (f *fakeEngine) RecordActivity(dir ActivityDirection, n uint64) {
	if dir == ActivityRecv {
		f.recvBytes += n
	} else {
		f.sendBytes += n
	}
}

func (f *fakeEngine) TransferStatus() *TransferStatus { return f.status }

func newTestLogger() (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	base := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.Level(LevelVerbose)}))
	return NewLogger(base), buf
}

// stubOp is a minimal opstack.Operation used to exercise stack mechanics
// without pulling in a real command's Send/ParseResponse behavior.
type stubOp struct {
	opstack.Base
	sendResult    opstack.ReplyCode
	subResult     opstack.ReplyCode
	gotSubcommand []opstack.ReplyCode
}

func newStubOp(id opstack.Command, topLevel bool) *stubOp {
	return &stubOp{Base: opstack.NewBase(id, id.String(), topLevel)}
}

func (s *stubOp) Send() opstack.ReplyCode         { return s.sendResult }
func (s *stubOp) ParseResponse() opstack.ReplyCode { return opstack.OK }
func (s *stubOp) SubcommandResult(previous opstack.ReplyCode) opstack.ReplyCode {
	s.gotSubcommand = append(s.gotSubcommand, previous)
	return s.subResult
}

// P8: a command containing a newline is rejected outright, never reaching
// the send buffer.
func TestSendCommandRejectsNewline(t *testing.T) {
	logger, _ := newTestLogger()
	cs := New(newFakeEngine(), logger, Options{})

	res := cs.sendCommand("ls\nrm -rf /", "")
	assert.Equal(t, opstack.INTERNALERROR, res)
}

func TestSendCommandRejectsCarriageReturn(t *testing.T) {
	logger, _ := newTestLogger()
	cs := New(newFakeEngine(), logger, Options{})

	res := cs.sendCommand("ls\rrm -rf /", "")
	assert.Equal(t, opstack.INTERNALERROR, res)
}

// resetOperation must deliver a popped frame's final result to the frame
// beneath it via SubcommandResult, and keep unwinding while that result
// still finalizes rather than blocking.
func TestResetOperationPropagatesSubcommandResult(t *testing.T) {
	logger, _ := newTestLogger()
	cs := New(newFakeEngine(), logger, Options{})

	below := newStubOp(opstack.CmdList, true)
	below.subResult = opstack.WOULDBLOCK
	above := newStubOp(opstack.CmdChangeDir, false)

	cs.stack.Push(below)
	cs.stack.Push(above)

	cs.resetOperation(opstack.ERROR)

	require.Len(t, below.gotSubcommand, 1)
	assert.Equal(t, opstack.ERROR, below.gotSubcommand[0])
	assert.Equal(t, opstack.Operation(below), cs.stack.Top())
}

// A SubcommandResult that itself finalizes (e.g. another ERROR) must keep
// unwinding the stack rather than stopping after one level.
func TestResetOperationUnwindsChainedFailures(t *testing.T) {
	logger, _ := newTestLogger()
	cs := New(newFakeEngine(), logger, Options{})

	bottom := newStubOp(opstack.CmdConnect, true)
	bottom.subResult = opstack.WOULDBLOCK
	middle := newStubOp(opstack.CmdList, false)
	middle.subResult = opstack.ERROR
	top := newStubOp(opstack.CmdChangeDir, false)

	cs.stack.Push(bottom)
	cs.stack.Push(middle)
	cs.stack.Push(top)

	cs.resetOperation(opstack.ERROR)

	// top popped, middle's SubcommandResult(ERROR) returns ERROR which is
	// itself non-OK/non-WOULDBLOCK, so middle is popped too and bottom
	// receives SubcommandResult next.
	require.Len(t, bottom.gotSubcommand, 1)
	assert.Equal(t, 1, cs.stack.Len())
	assert.Equal(t, opstack.Operation(bottom), cs.stack.Top())
}

// P3: Cancel must leave the helper dead, the parser dropped, the send
// buffer empty and the stack fully unwound.
func TestCancelTearsDownAliveSession(t *testing.T) {
	logger, _ := newTestLogger()
	cs := New(newFakeEngine(), logger, Options{HelperPath: "cat"})

	require.NoError(t, cs.spawnHelper())
	cs.stack.Push(newStubOp(opstack.CmdList, true))
	cs.send.Append([]byte("pending\n"))

	cs.Cancel()

	assert.Nil(t, cs.child)
	assert.Nil(t, cs.parser)
	assert.True(t, cs.send.Empty())
	assert.True(t, cs.stack.Empty())
}

// Cancel with nothing active must not even attempt DoClose.
func TestCancelNoopWhenIdle(t *testing.T) {
	logger, _ := newTestLogger()
	cs := New(newFakeEngine(), logger, Options{})
	cs.Cancel()
	assert.True(t, cs.stack.Empty())
}

// P6 / scenario 4: a second AskPassword carrying the same challenge
// identifier under a non-interactive logon must close the session with
// CRITICALERROR|PASSWORDFAILED rather than re-sending anything.
func TestAskPasswordMemoizationClosesOnRepeat(t *testing.T) {
	logger, _ := newTestLogger()
	cs := New(newFakeEngine(), logger, Options{})
	cs.credentials = Credentials{LogonType: LogonNormal}
	cs.credentials.SetPass("hunter2")

	op := newConnectOp(cs, true)
	cs.stack.Push(op)

	cs.onAskPassword("Password:")
	assert.False(t, cs.stack.Empty())
	assert.Equal(t, "\n\nPassword:", op.lastChallenge)

	cs.onAskPassword("Password:")
	assert.True(t, cs.stack.Empty(), "second identical challenge should close and unwind the stack")
}

// A different challenge identifier following an earlier one must also
// close, but for a distinct reason (additional prompt, not repetition).
func TestAskPasswordDifferentChallengeCloses(t *testing.T) {
	logger, buf := newTestLogger()
	cs := New(newFakeEngine(), logger, Options{})
	cs.credentials = Credentials{LogonType: LogonNormal}
	cs.credentials.SetPass("hunter2")

	op := newConnectOp(cs, true)
	cs.stack.Push(op)

	cs.onAskPassword("Password:")
	cs.onAskPassword("Verification code:")

	assert.True(t, cs.stack.Empty())
	assert.Contains(t, buf.String(), "additional login prompt")
}

// Interactive logons dispatch an async request instead of auto-answering.
// The registry's at-most-one-outstanding-request guarantee means a second
// prompt before the first is answered does not pile up a duplicate.
func TestAskPasswordInteractiveAlwaysPrompts(t *testing.T) {
	logger, _ := newTestLogger()
	engine := newFakeEngine()
	cs := New(engine, logger, Options{})
	cs.credentials = Credentials{LogonType: LogonInteractive}

	op := newConnectOp(cs, true)
	cs.stack.Push(op)

	cs.onAskPassword("Password:")
	cs.onAskPassword("Password:")

	assert.Len(t, engine.notifications, 1)
	assert.False(t, cs.stack.Empty())

	note := engine.notifications[0].(*InteractiveLoginNotification)
	ok := cs.SetAsyncRequestReply(AsyncReply{RequestID: note.RequestID, PasswordSet: true, Password: "hunter2"})
	assert.True(t, ok)
	assert.Equal(t, "hunter2", cs.credentials.GetPass())
}

// scenario 3 / §4.3: a hostkey port outside 1..65535 is a fatal protocol
// violation, not a prompt.
func TestOnAskHostkeyRejectsBadPort(t *testing.T) {
	logger, _ := newTestLogger()
	engine := newFakeEngine()
	cs := New(engine, logger, Options{})
	cs.stack.Push(newConnectOp(cs, true))

	cs.onAskHostkey(message(t, "0"), false)

	assert.True(t, cs.stack.Empty())
	assert.Empty(t, engine.notifications)
}

// scenario 2: a valid hostkey prompt is forwarded as a notification, and
// an "Once" reply sends "n" with a masked echo log.
func TestOnAskHostkeyDispatchesAndTrustOnce(t *testing.T) {
	logger, buf := newTestLogger()
	engine := newFakeEngine()
	cs := New(engine, logger, Options{})
	op := newConnectOp(cs, true)
	cs.stack.Push(op)

	cs.onAskHostkey(message(t, "22"), false)
	require.Len(t, engine.notifications, 1)
	note, ok := engine.notifications[0].(*HostKeyNotification)
	require.True(t, ok)
	assert.Equal(t, "srv", note.Host)
	assert.Equal(t, 22, note.Port)

	ok = cs.SetAsyncRequestReply(AsyncReply{RequestID: note.RequestID, Trust: true, AlwaysTrust: false})
	assert.True(t, ok)
	assert.Contains(t, buf.String(), "Trust new Hostkey: Once")
	assert.False(t, op.criticalFailure)
}

// An untrusted hostkey reply marks the connect operation's critical
// failure flag so its own ParseResponse promotes to a fatal close.
func TestOnAskHostkeyDistrustMarksCriticalFailure(t *testing.T) {
	logger, _ := newTestLogger()
	engine := newFakeEngine()
	cs := New(engine, logger, Options{})
	op := newConnectOp(cs, true)
	cs.stack.Push(op)

	cs.onAskHostkey(message(t, "22"), false)
	note := engine.notifications[0].(*HostKeyNotification)

	cs.SetAsyncRequestReply(AsyncReply{RequestID: note.RequestID, Trust: false})
	assert.True(t, op.criticalFailure)

	res := op.ParseResponse()
	assert.True(t, res.Has(opstack.DISCONNECTED))
}

// scenario 5 / P5: the exact allowance line format for a partially
// throttled grant is "-DB,L", concatenated with no extra separator
// between the direction digit and the granted amount.
func TestOnQuotaRequestSendsExactAllowanceLine(t *testing.T) {
	logger, buf := newTestLogger()
	cs := New(newFakeEngine(), logger, Options{SendSpeedLimit: 10000})
	cs.sendBucket = ratebucket.NewLimited(5000)

	cs.onQuotaRequest(ratebucket.Outbound)

	assert.Contains(t, buf.String(), "-15000,10000")
}

func TestOnQuotaRequestUnlimitedSendsDashOnly(t *testing.T) {
	logger, buf := newTestLogger()
	cs := New(newFakeEngine(), logger, Options{})
	cs.recvBucket = ratebucket.NewUnlimited()

	cs.onQuotaRequest(ratebucket.Inbound)

	assert.Contains(t, buf.String(), "-0-")
}

func TestOnQuotaRequestDefersWhenExhausted(t *testing.T) {
	logger, _ := newTestLogger()
	cs := New(newFakeEngine(), logger, Options{})
	cs.sendBucket = ratebucket.NewLimited(1)
	// Drain the single-token burst.
	cs.sendBucket.Available()

	cs.onQuotaRequest(ratebucket.Outbound)

	assert.True(t, cs.sendPending)
	assert.NotNil(t, cs.rateTimer)
}

// The Done message kind's status-digit table: "1" succeeds, "2" is
// critical, anything else is a plain error.
func TestOnMessageDoneInterpretsStatusDigit(t *testing.T) {
	for _, tc := range []struct {
		digit string
		want  opstack.ReplyCode
	}{
		{"1", opstack.OK},
		{"2", opstack.CRITICALERROR},
		{"9", opstack.ERROR},
		{"", opstack.ERROR},
	} {
		logger, _ := newTestLogger()
		cs := New(newFakeEngine(), logger, Options{})
		op := newStubOp(opstack.CmdMkdir, true)
		cs.stack.Push(op)

		cs.onMessage(doneMessage(tc.digit))

		assert.Equal(t, tc.want, cs.result, "digit %q", tc.digit)
	}
}

// message and doneMessage build the inputparser.Message values these
// tests feed to dispatch code directly, standing in for what the Parser
// would otherwise produce from raw helper output.
func message(t *testing.T, port string) inputparser.Message {
	t.Helper()
	return inputparser.Message{Kind: inputparser.AskHostkey, Fields: []string{"srv", port}}
}

func doneMessage(digit string) inputparser.Message {
	return inputparser.Message{Kind: inputparser.Done, Fields: []string{digit}}
}

// A rejected command must not leave the exclusivity flag stuck, or a
// later, well-formed command would be wrongly treated as a duplicate
// in-flight request (P1).
func TestSendCommandRejectedNewlineClearsAwaitingReply(t *testing.T) {
	logger, _ := newTestLogger()
	cs := New(newFakeEngine(), logger, Options{})

	cs.sendCommand("bad\ncommand", "")
	assert.False(t, cs.awaitingReply)
}

// AskHostkeyBetteralg must never occur during normal flow; receiving one
// is fatal and tears the session down rather than being logged and
// ignored.
func TestAskHostkeyBetteralgClosesSession(t *testing.T) {
	logger, _ := newTestLogger()
	cs := New(newFakeEngine(), logger, Options{})
	cs.stack.Push(newConnectOp(cs, true))

	cs.onMessage(inputparser.Message{Kind: inputparser.AskHostkeyBetteralg})

	assert.True(t, cs.stack.Empty())
}

// recordingOp tracks the order ParseResponse is invoked relative to
// sendCommand calls, used to check P1 (exclusivity) and P2 (ordering).
type recordingOp struct {
	opstack.Base
	cs      *ControlSocket
	replies []opstack.ReplyCode
}

func newRecordingOp(cs *ControlSocket) *recordingOp {
	return &recordingOp{Base: opstack.NewBase(opstack.CmdList, "recording", true), cs: cs}
}

func (op *recordingOp) Send() opstack.ReplyCode {
	return op.cs.sendCommand("noop", "")
}

func (op *recordingOp) ParseResponse() opstack.ReplyCode {
	op.replies = append(op.replies, op.cs.result)
	return op.cs.result
}

func (op *recordingOp) SubcommandResult(previous opstack.ReplyCode) opstack.ReplyCode {
	return previous
}

// P1: at most one command may be outstanding at a time. sendNextCommand
// puts the control socket into the awaiting-reply state; the reply that
// answers it clears that state and reaches ParseResponse exactly once.
func TestExclusivityOnlyOneCommandOutstanding(t *testing.T) {
	logger, _ := newTestLogger()
	cs := New(newFakeEngine(), logger, Options{})
	op := newRecordingOp(cs)
	cs.stack.Push(op)

	require.False(t, cs.awaitingReply)
	cs.sendNextCommand()
	assert.True(t, cs.awaitingReply)

	cs.processReply(opstack.OK, "200 ok")
	assert.False(t, cs.awaitingReply)
	require.Len(t, op.replies, 1)
}

// A WOULDBLOCK result out of processReply's direct ParseResponse call
// must be a no-op, exactly like afterOperationResult already treats it —
// otherwise changeDirOp's tryMkdOnFail retry (ParseResponse pushes a
// mkdirOp and returns WOULDBLOCK) gets its freshly-pushed frame popped
// before Send ever issues the mkdir command, deadlocking the session.
func TestProcessReplyWouldBlockIsNoop(t *testing.T) {
	logger, _ := newTestLogger()
	cs := New(newFakeEngine(), logger, Options{})
	op := newChangeDirOp(cs, "/remote", "", false)
	op.tryMkdOnFail = true
	cs.stack.Push(op)

	cs.processReply(opstack.ERROR, "550 no such directory")

	require.Equal(t, 2, cs.stack.Len())
	mkdir, ok := cs.stack.Top().(*mkdirOp)
	require.True(t, ok)
	assert.Equal(t, "/remote", mkdir.path)
	assert.Equal(t, 0, mkdir.State())
}

// P2: ParseResponse invocations on the top frame occur in the same order
// the underlying Reply/Done events arrive, one per sendCommand round
// trip, with no reordering or coalescing.
func TestOrderingParseResponseMatchesReplyArrivalOrder(t *testing.T) {
	logger, _ := newTestLogger()
	cs := New(newFakeEngine(), logger, Options{})
	op := newRecordingOp(cs)
	cs.stack.Push(op)

	cs.processReply(opstack.OK, "first")
	require.Equal(t, []opstack.ReplyCode{opstack.OK}, op.replies)

	// Re-push the same op as if a subsequent round re-armed it; a second
	// reply must append, not overwrite or reorder, the recorded result.
	cs.stack.Push(op)
	cs.processReply(opstack.ERROR, "second")
	require.Equal(t, []opstack.ReplyCode{opstack.OK, opstack.ERROR}, op.replies)
}
