package filezilla

import (
	"strings"

	"github.com/osirisinferi/filezilla/asyncrequest"
	"github.com/osirisinferi/filezilla/opstack"
)

// SetAsyncRequestReply routes a UI reply back into whichever operation
// dispatched the matching request (spec.md 4.1, 4.4). It returns false if
// reply.RequestID does not correspond to any outstanding request — e.g. a
// stale reply arriving after Cancel already tore the stack down.
func (cs *ControlSocket) SetAsyncRequestReply(reply AsyncReply) bool {
	req, ok := cs.async.Resolve(reply.RequestID)
	if !ok {
		return false
	}

	switch req.Kind {
	case asyncrequest.Hostkey, asyncrequest.HostkeyChanged:
		cs.onHostkeyReply(req, reply)
	case asyncrequest.InteractiveLogin:
		cs.onInteractiveLoginReply(req, reply)
	case asyncrequest.FileExists:
		cs.onFileExistsReply(req, reply)
	}
	return true
}

// onHostkeyReply implements spec.md 4.4's three-way hostkey reply policy.
func (cs *ControlSocket) onHostkeyReply(req *asyncrequest.Request, reply AsyncReply) {
	top, _ := req.Owner.(*connectOp)

	switch {
	case !reply.Trust:
		cs.logger.Status("Trust new Hostkey: No")
		if top != nil {
			top.criticalFailure = true
		}
		cs.afterOperationResult(cs.sendCommand("", "No"))
	case reply.AlwaysTrust:
		cs.logger.Status("Trust new Hostkey: Yes")
		cs.afterOperationResult(cs.sendCommand("y", "Yes"))
	default:
		cs.logger.Status("Trust new Hostkey: Once")
		cs.afterOperationResult(cs.sendCommand("n", "Once"))
	}
}

// onInteractiveLoginReply implements spec.md 4.4's interactiveLogin reply
// policy: a cancelled prompt closes the session; otherwise the password
// (unless this was a keyfile passphrase prompt) is stored back onto
// Credentials and echoed to the helper with the usual masked form.
func (cs *ControlSocket) onInteractiveLoginReply(req *asyncrequest.Request, reply AsyncReply) {
	if !reply.PasswordSet {
		cs.doClose(opstack.CANCELED)
		return
	}

	top, _ := req.Owner.(*connectOp)
	if top == nil || top.lastChallengeType != ChallengeKeyfile {
		cs.credentials.SetPass(reply.Password)
	}
	cs.afterOperationResult(cs.sendCommand(reply.Password, sprintf("Pass: %s", strings.Repeat("*", len(reply.Password)))))
}

// onFileExistsReply delegates to the transfer operation's own conflict
// policy, per spec.md 4.4's "fileexists is delegated" note.
func (cs *ControlSocket) onFileExistsReply(req *asyncrequest.Request, reply AsyncReply) {
	top, ok := cs.stack.Top().(*fileTransferOp)
	if !ok || top != req.Owner {
		cs.logger.DebugWarning("File-exists reply with no matching active transfer")
		return
	}
	cs.afterOperationResult(top.onFileExistsReply(reply))
}
