package filezilla

import "github.com/osirisinferi/filezilla/opstack"

// removeDirOp issues a single rmdir command.
type removeDirOp struct {
	opstack.Base
	cs           *ControlSocket
	path, subDir string
}

func newRemoveDirOp(cs *ControlSocket, path, subDir string) *removeDirOp {
	return &removeDirOp{Base: opstack.NewBase(opstack.CmdRemoveDir, "removeDir", true), cs: cs, path: path, subDir: subDir}
}

func (op *removeDirOp) fullPath() string {
	if op.subDir == "" {
		return op.path
	}
	return op.path + "/" + op.subDir
}

func (op *removeDirOp) Send() opstack.ReplyCode {
	if op.State() != 0 {
		return opstack.WOULDBLOCK
	}
	return op.cs.sendCommand(sprintf("rmdir %s", QuoteFilename(op.fullPath())), "")
}

func (op *removeDirOp) ParseResponse() opstack.ReplyCode {
	return op.cs.result
}

func (op *removeDirOp) SubcommandResult(previous opstack.ReplyCode) opstack.ReplyCode {
	return previous
}
