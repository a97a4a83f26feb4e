package filezilla

import (
	"github.com/osirisinferi/filezilla/inputparser"
	"github.com/osirisinferi/filezilla/opstack"
)

const (
	listStateCwd = iota
	listStateList
)

// listOp changes into the requested directory, then lists it, collecting
// ListEntry lines as they arrive while it is the top of the stack.
type listOp struct {
	opstack.Base
	cs *ControlSocket

	path, subDir string
	flags        int

	entries []inputparser.ListEntry
}

func newListOp(cs *ControlSocket, path, subDir string, flags int) *listOp {
	return &listOp{
		Base:   opstack.NewBase(opstack.CmdList, "list", true),
		cs:     cs,
		path:   path,
		subDir: subDir,
		flags:  flags,
	}
}

func (op *listOp) Send() opstack.ReplyCode {
	switch op.State() {
	case listStateCwd:
		return op.cs.sendCommand(sprintf("cwd %s", QuoteFilename(op.fullPath())), "")
	case listStateList:
		return op.cs.sendCommand("list", "")
	default:
		return opstack.WOULDBLOCK
	}
}

func (op *listOp) fullPath() string {
	if op.subDir == "" {
		return op.path
	}
	return op.path + "/" + op.subDir
}

func (op *listOp) ParseResponse() opstack.ReplyCode {
	switch op.State() {
	case listStateCwd:
		if !op.cs.result.Is(opstack.OK) {
			return op.cs.result
		}
		op.SetState(listStateList)
		return opstack.CONTINUE
	case listStateList:
		return op.cs.result
	default:
		return opstack.INTERNALERROR
	}
}

// parseEntry is invoked by onListEntry for every directory line the helper
// emits while this operation is on top. It never finalizes the operation
// itself (that is left to the terminating Reply/Done ParseResponse call),
// matching original_source's ParseEntry always returning WOULDBLOCK in
// the absence of a parse failure.
func (op *listOp) parseEntry(entry inputparser.ListEntry) opstack.ReplyCode {
	op.entries = append(op.entries, entry)
	return opstack.WOULDBLOCK
}

// Entries returns every directory entry collected so far.
func (op *listOp) Entries() []inputparser.ListEntry {
	return op.entries
}

func (op *listOp) SubcommandResult(previous opstack.ReplyCode) opstack.ReplyCode {
	return previous
}
