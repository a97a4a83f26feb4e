package filezilla

import "github.com/osirisinferi/filezilla/opstack"

// chmodOp issues a single chmod command.
type chmodOp struct {
	opstack.Base
	cs  *ControlSocket
	cmd ChmodCommand
}

func newChmodOp(cs *ControlSocket, cmd ChmodCommand) *chmodOp {
	return &chmodOp{Base: opstack.NewBase(opstack.CmdChmod, "chmod", true), cs: cs, cmd: cmd}
}

func (op *chmodOp) Send() opstack.ReplyCode {
	if op.State() != 0 {
		return opstack.WOULDBLOCK
	}
	target := op.cmd.Path + "/" + op.cmd.File
	return op.cs.sendCommand(sprintf("chmod %s %s", op.cmd.Permissions, QuoteFilename(target)), "")
}

func (op *chmodOp) ParseResponse() opstack.ReplyCode {
	return op.cs.result
}

func (op *chmodOp) SubcommandResult(previous opstack.ReplyCode) opstack.ReplyCode {
	return previous
}
