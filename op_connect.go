package filezilla

import (
	"github.com/osirisinferi/filezilla/opstack"
)

const (
	connectStateSpawn = iota
	connectStateOpen
)

// connectOp drives the initial handshake: spawning the helper, then
// waiting for it to report the connection established. Authentication
// challenges (host key, password) are handled by ControlSocket directly
// (dispatch.go) rather than through Send/ParseResponse, since they are
// driven by distinct Message kinds rather than by a reply to a command
// this operation issued — but this frame is still their anchor: it is
// where the per-connection challenge memoization and critical-failure
// flag named in spec.md 9 live.
type connectOp struct {
	opstack.Base
	cs *ControlSocket

	lastChallenge     string
	lastChallengeType ChallengeType
	criticalFailure   bool
}

func newConnectOp(cs *ControlSocket, topLevel bool) *connectOp {
	return &connectOp{
		Base: opstack.NewBase(opstack.CmdConnect, "connect", topLevel),
		cs:   cs,
	}
}

func (op *connectOp) Send() opstack.ReplyCode {
	switch op.State() {
	case connectStateSpawn:
		if err := op.cs.spawnHelper(); err != nil {
			op.cs.logger.Error("%s", err)
			return opstack.ERROR
		}
		op.SetState(connectStateOpen)
		cmd := sprintf("open %s@%s %d", op.cs.credentials.Account, op.cs.server.Host, op.cs.server.Port)
		if op.cs.credentials.Account == "" {
			cmd = sprintf("open %s %d", op.cs.server.Host, op.cs.server.Port)
		}
		return op.cs.sendCommand(cmd, "")
	default:
		return opstack.WOULDBLOCK
	}
}

func (op *connectOp) ParseResponse() opstack.ReplyCode {
	if op.criticalFailure {
		return opstack.CRITICALERROR | opstack.DISCONNECTED
	}
	return op.cs.result
}

func (op *connectOp) SubcommandResult(previous opstack.ReplyCode) opstack.ReplyCode {
	// connect never has a dependency pushed above it that it needs to
	// react to; any subcommand above a connect is a programming error.
	return previous
}
