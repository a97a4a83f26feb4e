package filezilla

// Encoding selects how outbound commands and inbound lines are
// transcoded to/from the helper. Custom disables UTF-8 framing, per
// spec.md 3.
type Encoding int

const (
	EncodingUTF8 Encoding = iota
	EncodingCustom
)

// Server is the endpoint descriptor passed to Connect.
type Server struct {
	Host           string
	Port           int
	Protocol       string
	Encoding       Encoding
	CustomEncoding string
	KeyFile        string
}

// LogonType selects how Credentials authenticates.
type LogonType int

const (
	LogonAnonymous LogonType = iota
	LogonNormal
	LogonAsk
	LogonInteractive
	LogonKeyfile
	LogonAccount
)

// Credentials holds the logon material for a connection. The password
// slot is deliberately mutable: a later UI reply during the challenge
// sequence overwrites it without invalidating the rest of the struct, per
// spec.md 3.
type Credentials struct {
	LogonType LogonType
	Account   string
	KeyFiles  []string

	password string
}

// GetPass returns the current password.
func (c *Credentials) GetPass() string {
	return c.password
}

// SetPass overwrites the password slot.
func (c *Credentials) SetPass(pass string) {
	c.password = pass
}

// EncryptionDetails is the transient summary of the current SSH transport
// negotiation, accumulated from helper events and surfaced to host-key
// prompts. It is reset on every transition out of the connected state
// (invariant I4).
type EncryptionDetails struct {
	KexAlgorithm          string
	KexHash               string
	KexCurve              string
	CipherClientToServer  string
	CipherServerToClient  string
	MacClientToServer     string
	MacServerToClient     string
	HostKeyAlgorithm      string
	HostKeyFingerprint    string
}

// reset clears every field; DoClose and Connect both call it.
func (e *EncryptionDetails) reset() {
	*e = EncryptionDetails{}
}

// ChallengeType classifies an interactive login prompt.
type ChallengeType int

const (
	ChallengeInteractive ChallengeType = iota
	ChallengeKeyfile
)

// ActivityDirection matches the two directions RecordActivity reports on.
type ActivityDirection int

const (
	ActivityRecv ActivityDirection = iota
	ActivitySend
)
