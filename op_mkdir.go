package filezilla

import "github.com/osirisinferi/filezilla/opstack"

// mkdirOp issues a single mkdir command.
type mkdirOp struct {
	opstack.Base
	cs   *ControlSocket
	path string
}

func newMkdirOp(cs *ControlSocket, path string) *mkdirOp {
	return &mkdirOp{Base: opstack.NewBase(opstack.CmdMkdir, "mkdir", true), cs: cs, path: path}
}

func (op *mkdirOp) Send() opstack.ReplyCode {
	if op.State() != 0 {
		return opstack.WOULDBLOCK
	}
	return op.cs.sendCommand(sprintf("mkdir %s", QuoteFilename(op.path)), "")
}

func (op *mkdirOp) ParseResponse() opstack.ReplyCode {
	return op.cs.result
}

func (op *mkdirOp) SubcommandResult(previous opstack.ReplyCode) opstack.ReplyCode {
	return previous
}
