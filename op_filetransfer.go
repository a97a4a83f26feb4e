package filezilla

import (
	"strconv"

	"github.com/osirisinferi/filezilla/asyncrequest"
	"github.com/osirisinferi/filezilla/inputparser"
	"github.com/osirisinferi/filezilla/opstack"
)

const (
	transferStateCommand = iota
	transferStateActive
)

// fileTransferOp drives one upload or download. The chunking/buffering
// policy behind the four io_* interaction points is explicitly out of
// scope (spec.md 1); what this type implements is the interaction
// contract itself — each io_* request is answered with exactly one
// command, and a conflict on open is routed through a fileexists
// AsyncRequest exactly like the original's resolution policy.
type fileTransferOp struct {
	opstack.Base
	cs  *ControlSocket
	cmd FileTransferCommand

	offset        int64
	awaitingExist bool
}

func newFileTransferOp(cs *ControlSocket, cmd FileTransferCommand) *fileTransferOp {
	return &fileTransferOp{Base: opstack.NewBase(opstack.CmdFileTransfer, "fileTransfer", true), cs: cs, cmd: cmd}
}

func (op *fileTransferOp) remotePath() string {
	return op.cmd.RemotePath + "/" + op.cmd.RemoteFile
}

func (op *fileTransferOp) Send() opstack.ReplyCode {
	switch op.State() {
	case transferStateCommand:
		op.SetState(transferStateActive)
		op.cs.engine.TransferStatus().Start(op.cmd.Download, op.startOffset())
		verb := "put"
		if op.cmd.Download {
			verb = "get"
		}
		return op.cs.sendCommand(sprintf("%s %s %s", verb, QuoteFilename(op.cmd.LocalFile), QuoteFilename(op.remotePath())), "")
	default:
		return opstack.WOULDBLOCK
	}
}

func (op *fileTransferOp) startOffset() int64 {
	if op.cmd.Resume {
		return op.offset
	}
	return 0
}

func (op *fileTransferOp) ParseResponse() opstack.ReplyCode {
	op.cs.engine.TransferStatus().Clear()
	return op.cs.result
}

func (op *fileTransferOp) SubcommandResult(previous opstack.ReplyCode) opstack.ReplyCode {
	return previous
}

// onOpenRequested handles io_open: field 0 carries the local file size as
// reported by the helper-side stat. A non-resume upload whose local file
// already exists remotely is routed through a fileexists AsyncRequest;
// everything else acknowledges immediately.
func (op *fileTransferOp) onOpenRequested(msg inputparser.Message) opstack.ReplyCode {
	if !op.cmd.Download && !op.cmd.Resume && msg.Field(0) != "" {
		req, ok := op.cs.async.New(op, asyncrequest.FileExists, msg)
		if !ok {
			return opstack.WOULDBLOCK
		}
		op.awaitingExist = true
		localSize, _ := strconv.ParseInt(msg.Field(0), 10, 64)
		op.cs.engine.SendAsyncRequest(&FileExistsNotification{
			RequestID:  req.ID,
			LocalFile:  op.cmd.LocalFile,
			RemoteFile: op.remotePath(),
			LocalSize:  localSize,
		})
		return opstack.WOULDBLOCK
	}
	return op.cs.sendCommand("open-ack", "")
}

// onSizeRequested handles io_size: report back the resume offset.
func (op *fileTransferOp) onSizeRequested(msg inputparser.Message) opstack.ReplyCode {
	return op.cs.sendCommand(sprintf("size-ack %d", op.offset), "")
}

// onNextBufferRequested handles io_nextbuf: field 0 is the number of
// bytes the helper is ready to accept. This layer only advances the
// tracked offset and acknowledges; actual buffer I/O is out of scope.
func (op *fileTransferOp) onNextBufferRequested(msg inputparser.Message) opstack.ReplyCode {
	if n, err := strconv.ParseInt(msg.Field(0), 10, 64); err == nil {
		op.offset += n
		op.cs.engine.TransferStatus().Update(op.offset)
	}
	return op.cs.sendCommand("buf-ack", "")
}

// onFinalizeRequested handles io_finalize: field 0 is the final byte
// count the helper wrote/read.
func (op *fileTransferOp) onFinalizeRequested(msg inputparser.Message) opstack.ReplyCode {
	if n, err := strconv.ParseInt(msg.Field(0), 10, 64); err == nil {
		op.offset = n
		op.cs.engine.TransferStatus().Update(n)
		op.cs.engine.TransferStatus().SetMadeProgress()
	}
	return op.cs.sendCommand("finalize-ack", "")
}

// onFileExistsReply resumes the open handshake once the UI has decided
// how to resolve a conflicting remote file.
func (op *fileTransferOp) onFileExistsReply(reply AsyncReply) opstack.ReplyCode {
	op.awaitingExist = false
	switch reply.FileExistsAction {
	case FileExistsSkip:
		return opstack.OK
	case FileExistsResume:
		return op.cs.sendCommand("open-ack-resume", "")
	case FileExistsRename:
		op.cmd.RemoteFile = reply.NewName
		return op.cs.sendCommand("open-ack", "")
	default:
		return op.cs.sendCommand("open-ack-overwrite", "")
	}
}
