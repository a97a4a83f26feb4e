// Package inputparser decodes the helper process's line-oriented status
// stream into typed Message and ListEntry events. The helper's exact wire
// grammar is an external protocol (spec.md 6); what matters to this
// package's contract is that it is newline-terminated text, one event per
// line, and that any single line over 65536 bytes is a fatal protocol
// violation (invariant I5).
package inputparser

import (
	"strconv"
	"strings"
	"time"
)

// MaxLineLength is the hard cap from invariant I5.
const MaxLineLength = 65536

// Parser accumulates raw bytes from the helper's stdout and dispatches
// decoded events through the two callbacks supplied to New. It keeps no
// other state than the current partial line and any fatal error, so it is
// cheap to construct per connection.
type Parser struct {
	onMessage   func(Message)
	onListEntry func(ListEntry)

	partial  []byte
	tooLong  bool
	fatalErr error
}

// New constructs a Parser that calls onMessage for every decoded Message
// and onListEntry for every decoded directory-listing line.
func New(onMessage func(Message), onListEntry func(ListEntry)) *Parser {
	return &Parser{onMessage: onMessage, onListEntry: onListEntry}
}

// Err returns the fatal error raised by a prior Feed, if any. Once set, it
// never clears; the owning control socket is expected to close the
// connection.
func (p *Parser) Err() error {
	return p.fatalErr
}

// Feed appends data to the parser's internal buffer and dispatches every
// complete line it now contains. It is a no-op once a prior call has set a
// fatal error.
func (p *Parser) Feed(data []byte) error {
	if p.fatalErr != nil {
		return p.fatalErr
	}
	p.partial = append(p.partial, data...)
	for {
		idx := indexByte(p.partial, '\n')
		if idx < 0 {
			if len(p.partial) > MaxLineLength {
				p.fatalErr = errTooLong
			}
			return p.fatalErr
		}
		line := p.partial[:idx]
		line = trimCR(line)
		p.partial = p.partial[idx+1:]
		if len(line) > MaxLineLength {
			p.fatalErr = errTooLong
			return p.fatalErr
		}
		p.dispatch(string(line))
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func trimCR(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\r' {
		return b[:len(b)-1]
	}
	return b
}

var errTooLong = lineTooLongError{}

type lineTooLongError struct{}

func (lineTooLongError) Error() string {
	return "inputparser: line exceeds maximum length"
}

// tagKinds maps the helper's line tag to the Message kind it produces.
var tagKinds = map[string]Kind{
	"reply":                Reply,
	"done":                 Done,
	"error":                Error,
	"verbose":              Verbose,
	"info":                 Info,
	"status":               Status,
	"recv":                 Recv,
	"send":                 Send,
	"transfer":             Transfer,
	"askhostkey":           AskHostkey,
	"askhostkeychanged":    AskHostkeyChanged,
	"askhostkeybetteralg":  AskHostkeyBetteralg,
	"askpassword":          AskPassword,
	"preamble":             RequestPreamble,
	"instruction":          RequestInstruction,
	"usedquotarecv":        UsedQuotaRecv,
	"usedquotasend":        UsedQuotaSend,
	"kexalgorithm":         KexAlgorithm,
	"kexhash":              KexHash,
	"kexcurve":             KexCurve,
	"cipherc2s":            CipherClientToServer,
	"ciphers2c":            CipherServerToClient,
	"macc2s":               MacClientToServer,
	"macs2c":               MacServerToClient,
	"hostkey":              Hostkey,
	"io_nextbuf":           IoNextbuf,
	"io_open":              IoOpen,
	"io_size":              IoSize,
	"io_finalize":          IoFinalize,
}

func (p *Parser) dispatch(line string) {
	if line == "" {
		return
	}
	tag, rest, _ := strings.Cut(line, "|")
	tag = strings.ToLower(tag)

	if tag == "listentry" {
		p.dispatchListEntry(rest)
		return
	}

	kind, ok := tagKinds[tag]
	if !ok {
		p.onMessage(Message{Kind: unknown, Fields: []string{line}})
		return
	}
	var fields []string
	if rest != "" || strings.Contains(line, "|") {
		fields = strings.Split(rest, "|")
	}
	p.onMessage(Message{Kind: kind, Fields: fields})
}

func (p *Parser) dispatchListEntry(rest string) {
	parts := strings.Split(rest, "|")
	entry := ListEntry{}
	if len(parts) > 0 {
		entry.Text = strings.Fields(parts[0])
	}
	if len(parts) > 1 {
		if sec, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
			entry.Mtime = time.Unix(sec, 0).UTC()
		}
	}
	if len(parts) > 2 {
		entry.Name = parts[2]
	}
	p.onListEntry(entry)
}
