package filezilla

import "github.com/osirisinferi/filezilla/opstack"

// renameOp issues a single rename command.
type renameOp struct {
	opstack.Base
	cs  *ControlSocket
	cmd RenameCommand
}

func newRenameOp(cs *ControlSocket, cmd RenameCommand) *renameOp {
	return &renameOp{Base: opstack.NewBase(opstack.CmdRename, "rename", true), cs: cs, cmd: cmd}
}

func (op *renameOp) Send() opstack.ReplyCode {
	if op.State() != 0 {
		return opstack.WOULDBLOCK
	}
	from := op.cmd.Path + "/" + op.cmd.FromFile
	to := op.cmd.Path + "/" + op.cmd.ToFile
	return op.cs.sendCommand(sprintf("rename %s %s", QuoteFilename(from), QuoteFilename(to)), "")
}

func (op *renameOp) ParseResponse() opstack.ReplyCode {
	return op.cs.result
}

func (op *renameOp) SubcommandResult(previous opstack.ReplyCode) opstack.ReplyCode {
	return previous
}
