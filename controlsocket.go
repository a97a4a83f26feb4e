// Package filezilla implements the control-socket core of an interactive
// SFTP client: a stack-structured operation manager that drives a
// long-lived helper child process over a line-oriented protocol,
// translating high-level file-manipulation commands into a sequence of
// textual interactions with that helper.
package filezilla

import (
	"context"
	"time"

	"github.com/osirisinferi/filezilla/asyncrequest"
	"github.com/osirisinferi/filezilla/inputparser"
	"github.com/osirisinferi/filezilla/opstack"
	"github.com/osirisinferi/filezilla/process"
	"github.com/osirisinferi/filezilla/ratebucket"
	"github.com/osirisinferi/filezilla/sendbuffer"
	"github.com/pkg/errors"
)

// rateRetryInterval is how long ControlSocket waits before re-asking a
// zero-balance bucket whether it has refilled (spec.md 4.5's "wakeup
// event").
const rateRetryInterval = 50 * time.Millisecond

// ControlSocket is the central orchestrator named in spec.md 4.1. It owns
// the operation stack, the send buffer, the helper process adapter, the
// input parser, the async-request registry and the rate buckets, and is
// NOT safe for concurrent use: every exported method and Run's internal
// event dispatch must execute on the same goroutine, matching the single-
// threaded cooperative model of spec.md 5.
type ControlSocket struct {
	engine Engine
	logger *Logger
	opts   Options

	server      Server
	credentials Credentials
	useUTF8     bool
	encDetails  EncryptionDetails

	stack opstack.Stack
	async *asyncrequest.Registry

	recvBucket *ratebucket.Bucket
	sendBucket *ratebucket.Bucket
	recvGroup  *ratebucket.Group
	sendGroup  *ratebucket.Group

	send   sendbuffer.Buffer
	child  *process.Child
	parser *inputparser.Parser

	awaitingReply bool
	result        opstack.ReplyCode
	response      string

	requestPreamble    string
	requestInstruction string

	recvPending, sendPending bool
	rateTimer                *time.Timer

	closing bool
}

// New constructs a ControlSocket bound to engine, using opts for helper
// spawn location and default speed limits.
func New(engine Engine, logger *Logger, opts Options) *ControlSocket {
	if logger == nil {
		logger = NewLogger(nil)
	}
	cs := &ControlSocket{
		engine:     engine,
		logger:     logger,
		opts:       opts,
		useUTF8:    true,
		async:      asyncrequest.NewRegistry(),
		recvBucket: ratebucket.NewLimited(opts.RecvSpeedLimit),
		sendBucket: ratebucket.NewLimited(opts.SendSpeedLimit),
	}
	return cs
}

// AddChild attaches this socket's rate buckets to shared parent groups, so
// several control sockets can be capped by one global limit.
func (cs *ControlSocket) AddChild(recv, send *ratebucket.Group) {
	cs.recvGroup, cs.sendGroup = recv, send
	recv.AddChild(cs.recvBucket)
	send.AddChild(cs.sendBucket)
}

// removeBucket detaches this socket's buckets from any parent groups, the
// Go analogue of the original's remove_bucket() called from DoClose.
func (cs *ControlSocket) removeBucket() {
	if cs.recvGroup != nil {
		cs.recvGroup.RemoveBucket(cs.recvBucket)
	}
	if cs.sendGroup != nil {
		cs.sendGroup.RemoveBucket(cs.sendBucket)
	}
}

// alive reports invariant I1: process_ is non-null iff input_parser_ is
// non-null iff the helper is considered alive.
func (cs *ControlSocket) alive() bool {
	return cs.child != nil && cs.parser != nil
}

// ---- Public command surface (spec.md 4.1) --------------------------------

// Connect pushes a connect operation. There is no precondition: Connect
// may be called whether or not a helper is already alive (a live helper
// is killed and replaced, matching the original always tearing down any
// prior connection before re-connecting through the same object).
func (cs *ControlSocket) Connect(server Server, credentials Credentials) {
	if server.Encoding == EncodingCustom {
		cs.logger.DebugInfo("Using custom encoding: %s", server.CustomEncoding)
		cs.useUTF8 = false
	} else {
		cs.useUTF8 = true
	}
	cs.server = server
	cs.credentials = credentials
	cs.encDetails.reset()
	cs.push(newConnectOp(cs, true))
}

// List pushes a list operation, synthesizing a connect first if needed.
func (cs *ControlSocket) List(path, subDir string, flags int) {
	cs.push(newListOp(cs, path, subDir, flags))
}

// ChangeDir pushes a changeDir operation, synthesizing a connect first if
// needed. If the current top-of-stack operation is a non-download file
// transfer, the changedir is marked to attempt Mkdir on a failed cwd — see
// SPEC_FULL.md 9's supplemented tryMkdOnFail behavior.
func (cs *ControlSocket) ChangeDir(path, subDir string, linkDiscovery bool) {
	op := newChangeDirOp(cs, path, subDir, linkDiscovery)
	if top, ok := cs.stack.Top().(*fileTransferOp); ok && !top.cmd.Download {
		op.tryMkdOnFail = true
	}
	cs.push(op)
}

// FileTransfer pushes a fileTransfer operation, synthesizing a connect
// first if needed.
func (cs *ControlSocket) FileTransfer(cmd FileTransferCommand) {
	cs.push(newFileTransferOp(cs, cmd))
}

// Delete pushes a delete operation, synthesizing a connect first if
// needed.
func (cs *ControlSocket) Delete(path string, files []string) {
	cs.push(newDeleteOp(cs, path, files))
}

// RemoveDir pushes a removeDir operation, synthesizing a connect first if
// needed.
func (cs *ControlSocket) RemoveDir(path, subDir string) {
	cs.push(newRemoveDirOp(cs, path, subDir))
}

// Mkdir pushes a mkdir operation, synthesizing a connect first if needed.
func (cs *ControlSocket) Mkdir(path string) {
	cs.push(newMkdirOp(cs, path))
}

// Chmod pushes a chmod operation, synthesizing a connect first if needed.
func (cs *ControlSocket) Chmod(cmd ChmodCommand) {
	cs.push(newChmodOp(cs, cmd))
}

// Rename pushes a rename operation, synthesizing a connect first if
// needed.
func (cs *ControlSocket) Rename(cmd RenameCommand) {
	cs.push(newRenameOp(cs, cmd))
}

// Cancel tears the session down if any operation is active (spec.md 4.1,
// 5). It always routes through DoClose(CANCELED).
func (cs *ControlSocket) Cancel() {
	if cs.stack.CurrentCommand() != opstack.CmdNone {
		cs.doClose(opstack.CANCELED)
	}
}

// push appends op, then — if op is now the only frame, is not itself a
// connect, and no helper is alive — synthesizes a top-level connect operation above it so the
// connect runs first (spec.md 4.2).
func (cs *ControlSocket) push(op opstack.Operation) {
	cs.stack.Push(op)
	if cs.stack.Len() == 1 && op.OpID() != opstack.CmdConnect && !cs.alive() {
		cs.stack.Push(newConnectOp(cs, true))
	}
}

// ---- SendBuffer / ChildProcess adapter glue (spec.md 4.6) -----------------

// sendCommand wraps addToSendBuffer: sets the awaiting-reply flag, logs
// the echo, rejects commands containing a newline (invariant I6), and
// transcodes through the encoding layer.
func (cs *ControlSocket) sendCommand(cmd, maskedEcho string) opstack.ReplyCode {
	cs.awaitingReply = true
	if maskedEcho != "" {
		cs.logger.Command(maskedEcho)
	} else {
		cs.logger.Command(cmd)
	}

	for _, r := range cmd {
		if r == '\n' || r == '\r' {
			cs.logger.DebugWarning("Command containing newline characters, aborting.")
			cs.awaitingReply = false
			return opstack.INTERNALERROR
		}
	}

	encoded, err := cs.convToServer(cmd + "\n")
	if err != nil {
		cs.logger.Error("%s", err)
		cs.awaitingReply = false
		return opstack.ERROR
	}
	return cs.addToSendBuffer(encoded)
}

// addToSendBuffer implements spec.md 4.6's AddToSendBuffer contract.
func (cs *ControlSocket) addToSendBuffer(data []byte) opstack.ReplyCode {
	if !cs.alive() {
		return opstack.INTERNALERROR
	}
	canSend := cs.send.Empty()
	cs.send.Append(data)
	if canSend {
		return cs.sendToProcess()
	}
	return opstack.WOULDBLOCK
}

// sendToProcess hands the buffer's unsent bytes to the process adapter.
// Per the preserved Open Question in spec.md 9, this always returns
// WOULDBLOCK on anything short of a hard error — callers must treat that
// as "nothing more to do right now", not as a failure.
func (cs *ControlSocket) sendToProcess() opstack.ReplyCode {
	if !cs.alive() {
		return opstack.INTERNALERROR
	}
	if cs.send.Empty() {
		return opstack.WOULDBLOCK
	}
	if !cs.child.TryWrite(cs.send.Bytes()) {
		return opstack.WOULDBLOCK
	}
	cs.send.Consume(cs.send.Len())
	return opstack.WOULDBLOCK
}

// sendNextCommand delegates to the top operation's Send.
func (cs *ControlSocket) sendNextCommand() opstack.ReplyCode {
	top := cs.stack.Top()
	if top == nil {
		return opstack.INTERNALERROR
	}
	return top.Send()
}

// ---- Run loop --------------------------------------------------------

// Run drives the control socket's event loop until ctx is canceled. It is
// the Go realization of the shared event-loop thread spec.md 5 describes:
// the only goroutine permitted to call any other ControlSocket method
// while Run is active is this one.
func (cs *ControlSocket) Run(ctx context.Context) {
	for {
		var childEvents <-chan process.Event
		if cs.child != nil {
			childEvents = cs.child.Events()
		}
		var timerC <-chan time.Time
		if cs.rateTimer != nil {
			timerC = cs.rateTimer.C
		}
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-childEvents:
			if !ok {
				continue
			}
			cs.onProcessEvent(ev)
		case <-timerC:
			cs.rateTimer = nil
			cs.onRateWakeup()
		}
	}
}

func (cs *ControlSocket) onProcessEvent(ev process.Event) {
	switch ev.Kind {
	case process.EventWritable:
		res := cs.sendToProcess()
		if res != opstack.WOULDBLOCK {
			cs.doClose(res)
		}
	case process.EventData:
		if cs.parser == nil {
			return
		}
		data := ev.Data
		if !cs.useUTF8 {
			s, err := cs.convFromServer(data)
			if err != nil {
				cs.logger.Error("%s", err)
				cs.doClose(opstack.ERROR | opstack.DISCONNECTED)
				return
			}
			data = []byte(s)
		}
		if err := cs.parser.Feed(data); err != nil {
			cs.logger.Error("Received too long response line, closing connection.")
			cs.doClose(opstack.ERROR | opstack.DISCONNECTED)
		}
	case process.EventClosed:
		if ev.Err != nil {
			cs.logger.Error("Could not send command to helper process")
			cs.doClose(opstack.ERROR | opstack.DISCONNECTED)
		} else if cs.alive() {
			cs.doClose(opstack.ERROR | opstack.DISCONNECTED)
		}
	}
}

// ---- DoClose (spec.md 4.7) -----------------------------------------------

// DoClose terminates the session: releases the rate bucket, kills the
// helper, drops the parser (filtering any in-flight events referring to
// it), drops the process adapter, resets EncryptionDetails, and pops every
// remaining operation. reason is not passed to the popped operations and
// is not reported to the engine.
func (cs *ControlSocket) doClose(reason opstack.ReplyCode) {
	if cs.closing {
		return
	}
	cs.closing = true
	defer func() { cs.closing = false }()

	cs.removeBucket()
	if cs.child != nil {
		cs.child.Kill()
	}
	cs.parser = nil
	cs.child = nil
	cs.send = sendbuffer.Buffer{}
	cs.encDetails.reset()

	for !cs.stack.Empty() {
		op := cs.stack.Pop()
		cs.async.CancelOwner(op)
	}
	cs.awaitingReply = false
}

// helperPath returns the argv used to spawn the helper, overridable via
// Options for tests.
func (cs *ControlSocket) helperPath() (string, []string) {
	if cs.opts.HelperPath != "" {
		return cs.opts.HelperPath, cs.opts.HelperArgs
	}
	return "fzsftp", nil
}

// spawnHelper starts the helper process and its input parser. Called by
// the connect operation's Send on its first invocation.
func (cs *ControlSocket) spawnHelper() error {
	if cs.child != nil {
		cs.child.Kill()
	}
	path, args := cs.helperPath()
	child, err := process.Spawn(path, args)
	if err != nil {
		return errors.Wrap(err, "spawn helper")
	}
	cs.child = child
	cs.parser = inputparser.New(cs.onMessage, cs.onListEntry)
	return nil
}
