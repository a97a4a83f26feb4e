package filezilla

import "github.com/osirisinferi/filezilla/opstack"

// deleteOp issues one rm command per file in files, one at a time: each
// Send emits the next pending file and ParseResponse advances the index,
// returning CONTINUE until the list is exhausted.
type deleteOp struct {
	opstack.Base
	cs    *ControlSocket
	path  string
	files []string
	index int
}

func newDeleteOp(cs *ControlSocket, path string, files []string) *deleteOp {
	return &deleteOp{Base: opstack.NewBase(opstack.CmdDelete, "delete", true), cs: cs, path: path, files: files}
}

func (op *deleteOp) Send() opstack.ReplyCode {
	if op.index >= len(op.files) {
		return opstack.WOULDBLOCK
	}
	target := op.path + "/" + op.files[op.index]
	return op.cs.sendCommand(sprintf("rm %s", QuoteFilename(target)), "")
}

func (op *deleteOp) ParseResponse() opstack.ReplyCode {
	if !op.cs.result.Is(opstack.OK) {
		return op.cs.result
	}
	op.index++
	if op.index >= len(op.files) {
		return opstack.OK
	}
	return opstack.CONTINUE
}

func (op *deleteOp) SubcommandResult(previous opstack.ReplyCode) opstack.ReplyCode {
	return previous
}
