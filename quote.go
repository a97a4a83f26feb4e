package filezilla

import "strings"

// QuoteFilename returns the helper-safe quoted form of name: wrapped in
// double quotes, with any embedded double quote doubled. It is the one
// operation in this layer with no operation/state involved at all
// (original_source's CSftpControlSocket::QuoteFilename is a single
// replaced_substrings call).
func QuoteFilename(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// UnquoteFilename reverses QuoteFilename: strip the outer double quotes,
// then collapse doubled `""` back to a single `"`. It exists to state and
// test P4 (quote round-trip); the helper protocol itself never needs to
// unquote.
func UnquoteFilename(quoted string) string {
	if len(quoted) >= 2 && strings.HasPrefix(quoted, `"`) && strings.HasSuffix(quoted, `"`) {
		quoted = quoted[1 : len(quoted)-1]
	}
	return strings.ReplaceAll(quoted, `""`, `"`)
}
