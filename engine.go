package filezilla

import "sync"

// Engine is the narrow handle this layer is given instead of reaching for
// a process-wide singleton (spec.md 9's "pass an Engine handle into the
// ControlSocket" design note). It bundles every piece of the downward
// interface in spec.md 6 except logging, which travels separately as a
// *Logger so operations can log without a type assertion on Engine.
type Engine interface {
	// SendAsyncRequest queues a prompt for the UI. notification is one of
	// *HostKeyNotification, *InteractiveLoginNotification or
	// *FileExistsNotification.
	SendAsyncRequest(notification any)
	// RecordActivity accounts bytes moved in direction dir.
	RecordActivity(dir ActivityDirection, bytes uint64)
	// TransferStatus returns the shared transfer-progress tracker.
	TransferStatus() *TransferStatus
}

// Options configures a ControlSocket's ambient behavior: helper spawn
// location, default speed limits, and similar knobs that spec.md 3
// attributes to Server/engine options rather than to any one operation.
// There is no on-disk form; spec.md 1 explicitly excludes persistence from
// this layer.
type Options struct {
	HelperPath string
	HelperArgs []string

	// RecvSpeedLimit/SendSpeedLimit are bytes/sec, 0 == unlimited. These
	// back the "L" field of the helper's rate-limit protocol (spec.md 4.5),
	// independent of whatever instantaneous grant the bucket computes.
	RecvSpeedLimit int64
	SendSpeedLimit int64
}

// HostKeyNotification is dispatched for AskHostkey/AskHostkeyChanged.
type HostKeyNotification struct {
	RequestID uint64
	Host      string
	Port      int
	Details   EncryptionDetails
	Changed   bool
}

// InteractiveLoginNotification is dispatched for an AskPassword prompt
// under interactive logon, or for the keyfile-passphrase case regardless
// of logon type.
type InteractiveLoginNotification struct {
	RequestID     uint64
	Type          ChallengeType
	Challenge     string
	SameChallenge bool
	Server        Server
	Credentials   Credentials
}

// FileExistsNotification is dispatched by a transfer operation's own
// conflict policy; this layer only routes the reply back to it (spec.md
// 4.4, "delegated to the transfer operation's own policy handler").
type FileExistsNotification struct {
	RequestID  uint64
	LocalFile  string
	RemoteFile string
	LocalSize  int64
	RemoteSize int64
}

// FileExistsAction is the UI's verdict on a FileExistsNotification.
type FileExistsAction int

const (
	FileExistsOverwrite FileExistsAction = iota
	FileExistsResume
	FileExistsRename
	FileExistsSkip
)

// AsyncReply is what SetAsyncRequestReply accepts: a reply to exactly one
// previously dispatched notification, identified by RequestID.
type AsyncReply struct {
	RequestID uint64

	// Hostkey / HostkeyChanged
	Trust       bool
	AlwaysTrust bool

	// InteractiveLogin
	PasswordSet bool
	Password    string

	// FileExists
	FileExistsAction FileExistsAction
	NewName          string
}

// TransferStatusSnapshot is a point-in-time read of TransferStatus.
type TransferStatusSnapshot struct {
	Empty         bool
	Download      bool
	StartOffset   int64
	CurrentOffset int64
	MadeProgress  bool
}

// TransferStatus tracks progress of the in-flight transfer. Unlike every
// other piece of state in this repo it is read from outside the goroutine
// that drives the control socket (a UI progress display), so it is the
// one type here that carries its own mutex, matching spec.md 5's carve-out
// for transfer_status_.
type TransferStatus struct {
	mu   sync.Mutex
	snap TransferStatusSnapshot
}

// NewTransferStatus returns an empty status.
func NewTransferStatus() *TransferStatus {
	return &TransferStatus{snap: TransferStatusSnapshot{Empty: true}}
}

// Start begins tracking a new transfer.
func (t *TransferStatus) Start(download bool, startOffset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap = TransferStatusSnapshot{
		Empty:         false,
		Download:      download,
		StartOffset:   startOffset,
		CurrentOffset: startOffset,
	}
}

// Get returns the current snapshot and whether it is non-empty.
func (t *TransferStatus) Get() (TransferStatusSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap, !t.snap.Empty
}

// Update advances the current offset (for uploads; see spec.md 4.3).
func (t *TransferStatus) Update(offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Empty {
		return
	}
	t.snap.CurrentOffset = offset
}

// SetMadeProgress latches the made-progress flag.
func (t *TransferStatus) SetMadeProgress() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.MadeProgress = true
}

// Clear empties the status, e.g. once a transfer operation is popped.
func (t *TransferStatus) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap = TransferStatusSnapshot{Empty: true}
}
