package inputparser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T) (*Parser, *[]Message, *[]ListEntry) {
	t.Helper()
	var msgs []Message
	var entries []ListEntry
	p := New(func(m Message) { msgs = append(msgs, m) }, func(e ListEntry) { entries = append(entries, e) })
	return p, &msgs, &entries
}

func TestDecodesReplyAndDone(t *testing.T) {
	p, msgs, _ := collect(t)
	require.NoError(t, p.Feed([]byte("reply|Connected\ndone|1\n")))
	require.Len(t, *msgs, 2)
	assert.Equal(t, Reply, (*msgs)[0].Kind)
	assert.Equal(t, "Connected", (*msgs)[0].Field(0))
	assert.Equal(t, Done, (*msgs)[1].Kind)
	assert.Equal(t, "1", (*msgs)[1].Field(0))
}

func TestHandlesPartialLinesAcrossFeeds(t *testing.T) {
	p, msgs, _ := collect(t)
	require.NoError(t, p.Feed([]byte("sta")))
	assert.Empty(t, *msgs)
	require.NoError(t, p.Feed([]byte("tus|Listing directory\n")))
	require.Len(t, *msgs, 1)
	assert.Equal(t, Status, (*msgs)[0].Kind)
}

func TestCRLFIsTrimmed(t *testing.T) {
	p, msgs, _ := collect(t)
	require.NoError(t, p.Feed([]byte("error|boom\r\n")))
	require.Len(t, *msgs, 1)
	assert.Equal(t, "boom", (*msgs)[0].Field(0))
}

func TestUnknownTagBecomesUnknownMessage(t *testing.T) {
	p, msgs, _ := collect(t)
	require.NoError(t, p.Feed([]byte("frobnicate|whatever\n")))
	require.Len(t, *msgs, 1)
	assert.Equal(t, unknown, (*msgs)[0].Kind)
}

func TestListEntryDecoded(t *testing.T) {
	p, _, entries := collect(t)
	require.NoError(t, p.Feed([]byte("listentry|-rw-r--r-- 1 a.txt|1700000000|a.txt\n")))
	require.Len(t, *entries, 1)
	e := (*entries)[0]
	assert.Equal(t, "a.txt", e.Name)
	assert.Contains(t, e.Text, "a.txt")
	assert.False(t, e.Mtime.IsZero())
}

// P7 (oversize rejection): any line over 65536 bytes is a fatal protocol
// violation.
func TestOversizeLineIsFatal(t *testing.T) {
	p, msgs, _ := collect(t)
	huge := "status|" + strings.Repeat("x", MaxLineLength+10) + "\n"
	err := p.Feed([]byte(huge))
	require.Error(t, err)
	assert.Empty(t, *msgs)

	// Further feeding stays fatal.
	err2 := p.Feed([]byte("reply|ok\n"))
	require.Error(t, err2)
	assert.Empty(t, *msgs)
}

func TestOversizeAccumulatedAcrossFeedsWithoutNewline(t *testing.T) {
	p, _, _ := collect(t)
	var err error
	chunk := strings.Repeat("y", 1024)
	for i := 0; i < 70 && err == nil; i++ {
		err = p.Feed([]byte(chunk))
	}
	require.Error(t, err)
}

func TestNoFieldsForBareTag(t *testing.T) {
	p, msgs, _ := collect(t)
	require.NoError(t, p.Feed([]byte("askhostkeybetteralg\n")))
	require.Len(t, *msgs, 1)
	assert.Empty(t, (*msgs)[0].Fields)
}
