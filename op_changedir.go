package filezilla

import "github.com/osirisinferi/filezilla/opstack"

const (
	changeDirStateCwd = iota
	changeDirStateAwaitMkdir
)

// changeDirOp issues a single cwd command. Per SPEC_FULL.md 9 (a
// supplemented feature not spelled out by spec.md's distillation but
// present in original_source's CSftpChangeDirOpData), a changeDir pushed
// as the landing-directory step of an upload may retry by creating the
// directory on a failed cwd, controlled by tryMkdOnFail.
type changeDirOp struct {
	opstack.Base
	cs *ControlSocket

	path, subDir  string
	linkDiscovery bool
	tryMkdOnFail  bool
}

func newChangeDirOp(cs *ControlSocket, path, subDir string, linkDiscovery bool) *changeDirOp {
	return &changeDirOp{
		Base:          opstack.NewBase(opstack.CmdChangeDir, "changeDir", true),
		cs:            cs,
		path:          path,
		subDir:        subDir,
		linkDiscovery: linkDiscovery,
	}
}

func (op *changeDirOp) fullPath() string {
	if op.subDir == "" {
		return op.path
	}
	return op.path + "/" + op.subDir
}

func (op *changeDirOp) Send() opstack.ReplyCode {
	switch op.State() {
	case changeDirStateCwd:
		return op.cs.sendCommand(sprintf("cwd %s", QuoteFilename(op.fullPath())), "")
	default:
		return opstack.WOULDBLOCK
	}
}

func (op *changeDirOp) ParseResponse() opstack.ReplyCode {
	if op.cs.result.Is(opstack.OK) || !op.tryMkdOnFail {
		return op.cs.result
	}
	// cwd failed and this changeDir is allowed to try creating the
	// directory: synthesize a mkdir above ourselves and retry the cwd
	// once it reports back via SubcommandResult.
	op.SetState(changeDirStateAwaitMkdir)
	op.cs.stack.Push(newMkdirOp(op.cs, op.fullPath()))
	return opstack.WOULDBLOCK
}

func (op *changeDirOp) SubcommandResult(previous opstack.ReplyCode) opstack.ReplyCode {
	if op.State() != changeDirStateAwaitMkdir {
		return previous
	}
	if !previous.Is(opstack.OK) {
		return previous
	}
	// Mkdir succeeded; retry the cwd once more, this time without a
	// further fallback.
	op.tryMkdOnFail = false
	op.SetState(changeDirStateCwd)
	return opstack.CONTINUE
}
