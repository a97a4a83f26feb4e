package filezilla

import (
	"strconv"
	"strings"
	"time"

	"github.com/osirisinferi/filezilla/asyncrequest"
	"github.com/osirisinferi/filezilla/inputparser"
	"github.com/osirisinferi/filezilla/opstack"
	"github.com/osirisinferi/filezilla/ratebucket"
)

// processReply is the sole entry point from the parser for reply/done
// lines (spec.md 4.2): it stashes replyStatus/replyText, drops the event
// if nothing is active, closes fatally on an oversize reply, and otherwise
// feeds the stored result to the top operation's ParseResponse.
func (cs *ControlSocket) processReply(status opstack.ReplyCode, text string) {
	cs.awaitingReply = false
	cs.result = status
	cs.response = text

	top := cs.stack.Top()
	if top == nil {
		cs.logger.DebugWarning("Reply received with no active operation")
		return
	}
	if len(text) > inputparser.MaxLineLength {
		cs.doClose(opstack.ERROR | opstack.DISCONNECTED)
		return
	}
	cs.dispose(top, top.ParseResponse())
}

// dispose implements ProcessReply's disposal table: OK unwinds the frame
// and lets a SubcommandResult chain continue; CONTINUE re-invokes Send on
// the same top frame; a DISCONNECTED-tagged result always closes the
// session; a plain ERROR from the connect operation promotes to a close
// (connect has no frame below it to recover into); any other ERROR just
// unwinds the one frame.
func (cs *ControlSocket) dispose(top opstack.Operation, res opstack.ReplyCode) {
	switch {
	case res.Is(opstack.WOULDBLOCK):
		return
	case res.Is(opstack.OK):
		cs.resetOperation(opstack.OK)
	case res.Is(opstack.CONTINUE):
		cs.afterOperationResult(cs.sendNextCommand())
	case res.Has(opstack.DISCONNECTED):
		cs.doClose(res)
	case res.Is(opstack.ERROR) && top.OpID() == opstack.CmdConnect:
		cs.doClose(res | opstack.DISCONNECTED)
	default:
		cs.resetOperation(res)
	}
}

// afterOperationResult interprets a result produced outside of
// processReply's direct call path — from SendNextCommand, a list entry, a
// transfer I/O callback, or a SubcommandResult propagation — routing it
// through the same disposal table whenever a frame remains to dispose of.
func (cs *ControlSocket) afterOperationResult(res opstack.ReplyCode) {
	if res.Is(opstack.WOULDBLOCK) {
		return
	}
	top := cs.stack.Top()
	if top == nil {
		return
	}
	cs.dispose(top, res)
}

// resetOperation pops the finished frame off the stack, cancels any async
// request it still had outstanding, and — if anything remains below it —
// informs the new top of the result via SubcommandResult, propagating
// further down the stack if that in turn finalizes.
func (cs *ControlSocket) resetOperation(result opstack.ReplyCode) {
	op := cs.stack.Pop()
	if op == nil {
		return
	}
	cs.async.CancelOwner(op)

	if cs.stack.Empty() {
		return
	}
	next := cs.stack.Top()
	cs.afterOperationResult(next.SubcommandResult(result))
}

// onMessage is the Parser callback wired up in spawnHelper. It realizes
// the dispatch table of spec.md 4.3: every Kind the helper can report maps
// to exactly one of logging, bookkeeping, an async UI request, or handing
// a terminal status to the operation stack.
func (cs *ControlSocket) onMessage(msg inputparser.Message) {
	switch msg.Kind {
	case inputparser.Reply:
		cs.logger.Reply(msg.Field(0))
		cs.processReply(opstack.OK, msg.Field(0))

	case inputparser.Done:
		status := opstack.ERROR
		switch msg.Field(0) {
		case "1":
			status = opstack.OK
		case "2":
			status = opstack.CRITICALERROR
		}
		cs.processReply(status, "")

	case inputparser.Error:
		cs.logger.Error("%s", msg.Field(0))

	case inputparser.Verbose:
		cs.logger.DebugVerbose(msg.Field(0))
	case inputparser.Info:
		cs.logger.DebugInfo(msg.Field(0))
	case inputparser.Status:
		cs.logger.Status(msg.Field(0))

	case inputparser.Recv:
		cs.onActivity(ActivityRecv, msg.Field(0))
	case inputparser.Send:
		cs.onActivity(ActivitySend, msg.Field(0))

	case inputparser.Transfer:
		cs.onTransfer(msg.Field(0))

	case inputparser.RequestPreamble:
		cs.requestPreamble = msg.Field(0)
	case inputparser.RequestInstruction:
		cs.requestInstruction = msg.Field(0)

	case inputparser.KexAlgorithm:
		cs.encDetails.KexAlgorithm = msg.Field(0)
	case inputparser.KexHash:
		cs.encDetails.KexHash = msg.Field(0)
	case inputparser.KexCurve:
		cs.encDetails.KexCurve = msg.Field(0)
	case inputparser.CipherClientToServer:
		cs.encDetails.CipherClientToServer = msg.Field(0)
	case inputparser.CipherServerToClient:
		cs.encDetails.CipherServerToClient = msg.Field(0)
	case inputparser.MacClientToServer:
		cs.encDetails.MacClientToServer = msg.Field(0)
	case inputparser.MacServerToClient:
		cs.encDetails.MacServerToClient = msg.Field(0)
	case inputparser.Hostkey:
		cs.onHostkeyLine(msg.Field(0))

	case inputparser.AskHostkey:
		cs.onAskHostkey(msg, false)
	case inputparser.AskHostkeyChanged:
		cs.onAskHostkey(msg, true)
	case inputparser.AskHostkeyBetteralg:
		cs.logger.Error("Server offered a better host key algorithm but we already accepted one, closing connection.")
		cs.doClose(opstack.INTERNALERROR)

	case inputparser.AskPassword:
		cs.onAskPassword(msg.Field(0))

	case inputparser.UsedQuotaRecv:
		cs.onQuotaRequest(ratebucket.Inbound)
	case inputparser.UsedQuotaSend:
		cs.onQuotaRequest(ratebucket.Outbound)

	case inputparser.IoNextbuf, inputparser.IoOpen, inputparser.IoSize, inputparser.IoFinalize:
		cs.onTransferIO(msg)

	default:
		cs.logger.DebugWarning("Unknown message from helper: %v", msg.Fields)
	}
}

// onListEntry routes a directory-listing line to the top-of-stack list
// operation, if any is active. A line arriving with no list operation on
// top is a protocol violation on the helper's part and is dropped with a
// warning rather than crashing the control socket.
func (cs *ControlSocket) onListEntry(entry inputparser.ListEntry) {
	op, ok := cs.stack.Top().(*listOp)
	if !ok {
		cs.logger.DebugWarning("Received directory listing entry without an active list operation")
		return
	}
	cs.afterOperationResult(op.parseEntry(entry))
}

// onActivity parses a byte count off field and forwards it to the engine
// for transfer-speed accounting (spec.md 6's RecordActivity).
func (cs *ControlSocket) onActivity(dir ActivityDirection, field string) {
	n, err := strconv.ParseUint(field, 10, 64)
	if err != nil {
		return
	}
	cs.engine.RecordActivity(dir, n)
}

// onTransfer implements the Transfer message's accounting rules: the
// running offset is only pushed into TransferStatus for an upload (a
// download's offset is tracked by the io_nextbuf/io_finalize callbacks
// instead), and the made-progress latch requires either a download's
// first nonzero byte or an upload's offset clearing a fixed slack past
// its start offset, per original_source's sftpcontrolsocket.cpp.
func (cs *ControlSocket) onTransfer(field string) {
	value, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return
	}
	top, ok := cs.stack.Top().(*fileTransferOp)
	if !ok {
		return
	}
	status, active := cs.engine.TransferStatus().Get()
	if !active {
		return
	}
	if !top.cmd.Download {
		cs.engine.TransferStatus().Update(value)
	}
	if status.MadeProgress {
		return
	}
	if top.cmd.Download {
		if value > 0 {
			cs.engine.TransferStatus().SetMadeProgress()
		}
	} else if status.CurrentOffset > status.StartOffset+65565 {
		cs.engine.TransferStatus().SetMadeProgress()
	}
}

// onHostkeyLine tokenizes a "hostkey" line: the last whitespace-separated
// token is the fingerprint, everything before it (rejoined with spaces)
// is the algorithm name. This ordering is taken from
// original_source/src/engine/sftp/sftpcontrolsocket.cpp's hostkey parsing,
// which is otherwise unspecified by spec.md.
func (cs *ControlSocket) onHostkeyLine(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	cs.encDetails.HostKeyFingerprint = fields[len(fields)-1]
	cs.encDetails.HostKeyAlgorithm = strings.Join(fields[:len(fields)-1], " ")
}

// onAskHostkey dispatches a HostKeyNotification built from the host/port
// the helper reported and the EncryptionDetails accumulated since the last
// reset. A port outside 1..65535 is a protocol violation (spec.md 4.3) and
// closes the session instead of prompting.
func (cs *ControlSocket) onAskHostkey(msg inputparser.Message, changed bool) {
	host := msg.Field(0)
	port, err := strconv.Atoi(msg.Field(1))
	if err != nil || port < 1 || port > 65535 {
		cs.doClose(opstack.INTERNALERROR)
		return
	}

	top, ok := cs.stack.Top().(*connectOp)
	if !ok {
		cs.logger.DebugWarning("Host key request without an active connect operation")
		return
	}
	kind := asyncrequest.Hostkey
	if changed {
		kind = asyncrequest.HostkeyChanged
	}
	req, ok := cs.async.New(top, kind, nil)
	if !ok {
		return
	}
	cs.engine.SendAsyncRequest(&HostKeyNotification{
		RequestID: req.ID,
		Host:      host,
		Port:      port,
		Details:   cs.encDetails,
		Changed:   changed,
	})
}

// onAskPassword implements spec.md 4.4's challenge/memoization contract,
// grounded on original_source's AskPassword case: prompt is the literal
// per-prompt label the helper sent (field 0 of the AskPassword message).
func (cs *ControlSocket) onAskPassword(prompt string) {
	top, ok := cs.stack.Top().(*connectOp)
	if !ok {
		cs.logger.DebugWarning("Password request without an active connect operation")
		return
	}

	challengeIdentifier := cs.requestPreamble + "\n" + cs.requestInstruction + "\n" + prompt

	challengeType := ChallengeInteractive
	if cs.requestPreamble == "SSH key passphrase" {
		challengeType = ChallengeKeyfile
	}

	defer func() {
		top.lastChallenge = challengeIdentifier
		top.lastChallengeType = challengeType
	}()

	if cs.credentials.LogonType == LogonInteractive || cs.requestPreamble == "SSH key passphrase" {
		var b strings.Builder
		if cs.requestPreamble != "" && challengeType != ChallengeKeyfile {
			b.WriteString(cs.requestPreamble)
			b.WriteString("\n")
		}
		if cs.requestInstruction != "" {
			b.WriteString(cs.requestInstruction)
			b.WriteString("\n")
		}
		if prompt != "Password:" {
			b.WriteString(prompt)
		}

		req, ok := cs.async.New(top, asyncrequest.InteractiveLogin, challengeIdentifier)
		if !ok {
			return
		}
		cs.engine.SendAsyncRequest(&InteractiveLoginNotification{
			RequestID:     req.ID,
			Type:          challengeType,
			Challenge:     b.String(),
			SameChallenge: top.lastChallenge == challengeIdentifier,
			Server:        cs.server,
			Credentials:   cs.credentials,
		})
		return
	}

	if top.lastChallenge != "" && top.lastChallengeType != ChallengeKeyfile {
		if top.lastChallenge == challengeIdentifier {
			cs.logger.Error("Authentication failed.")
		} else {
			cs.logger.Error("Server sent an additional login prompt. You need to use the interactive login type.")
		}
		cs.doClose(opstack.CRITICALERROR | opstack.PASSWORDFAILED)
		return
	}

	pass := cs.credentials.GetPass()
	if cs.credentials.LogonType == LogonAnonymous {
		pass = "anonymous@example.com"
	}
	cs.sendCommand(pass, sprintf("Pass: %s", strings.Repeat("*", len(pass))))
}

// onQuotaRequest answers a helper quota query with whatever the relevant
// bucket can currently spare, per spec.md 4.5's three-way contract. When
// the bucket has nothing right now it defers the answer until the next
// rate-timer wakeup rather than answering zero, since zero would stall the
// transfer instead of merely slowing it.
func (cs *ControlSocket) onQuotaRequest(dir ratebucket.Direction) {
	bucket := cs.recvBucket
	d := "0"
	limit := cs.opts.RecvSpeedLimit
	if dir == ratebucket.Outbound {
		bucket = cs.sendBucket
		d = "1"
		limit = cs.opts.SendSpeedLimit
	}

	granted, unlimited, ok := bucket.Available()
	switch {
	case unlimited:
		cs.sendCommand(sprintf("-%s-", d), "")
	case ok:
		cs.sendCommand(sprintf("-%s%d,%d", d, granted, limit), "")
	default:
		if dir == ratebucket.Inbound {
			cs.recvPending = true
		} else {
			cs.sendPending = true
		}
		if cs.rateTimer == nil {
			cs.rateTimer = time.NewTimer(rateRetryInterval)
		}
	}
}

// onRateWakeup is called by Run when the rate timer fires: every direction
// whose quota answer was deferred by onQuotaRequest is asked again.
func (cs *ControlSocket) onRateWakeup() {
	recv, send := cs.recvPending, cs.sendPending
	cs.recvPending, cs.sendPending = false, false
	if recv {
		cs.onQuotaRequest(ratebucket.Inbound)
	}
	if send {
		cs.onQuotaRequest(ratebucket.Outbound)
	}
}

// onTransferIO forwards an io_* event to the file-transfer operation
// currently on top of the stack. These four messages are the interaction
// contract spec.md 1 carves out explicitly: this layer routes them and
// reacts to their return code, but the buffering/seeking/chunking policy
// behind them belongs to the operation, not the control socket.
func (cs *ControlSocket) onTransferIO(msg inputparser.Message) {
	top, ok := cs.stack.Top().(*fileTransferOp)
	if !ok {
		cs.logger.DebugWarning("Transfer I/O request without an active transfer operation")
		return
	}
	var res opstack.ReplyCode
	switch msg.Kind {
	case inputparser.IoNextbuf:
		res = top.onNextBufferRequested(msg)
	case inputparser.IoOpen:
		res = top.onOpenRequested(msg)
	case inputparser.IoSize:
		res = top.onSizeRequested(msg)
	case inputparser.IoFinalize:
		res = top.onFinalizeRequested(msg)
	}
	cs.afterOperationResult(res)
}
