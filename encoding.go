package filezilla

import (
	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// convToServer transcodes an outbound command from the engine's native
// UTF-8 to whatever the server's Encoding calls for. Custom-encoding
// servers get their commands transcoded through golang.org/x/text, the
// same module the teacher pack already depends on (for
// golang.org/x/text/unicode/norm elsewhere) for text-encoding concerns.
func (cs *ControlSocket) convToServer(s string) ([]byte, error) {
	if cs.useUTF8 {
		return []byte(s), nil
	}
	enc, err := cs.customEncoding()
	if err != nil {
		return nil, err
	}
	out, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, errors.Wrap(err, "could not convert command to server encoding")
	}
	return out, nil
}

// convFromServer transcodes an inbound line from the server's encoding
// back to UTF-8.
func (cs *ControlSocket) convFromServer(b []byte) (string, error) {
	if cs.useUTF8 {
		return string(b), nil
	}
	enc, err := cs.customEncoding()
	if err != nil {
		return "", err
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", errors.Wrap(err, "could not convert response from server encoding")
	}
	return string(out), nil
}

func (cs *ControlSocket) customEncoding() (encoding.Encoding, error) {
	if cs.server.CustomEncoding == "" {
		return charmap.ISO8859_1, nil
	}
	enc, err := ianaindex.IANA.Encoding(cs.server.CustomEncoding)
	if err != nil || enc == nil {
		return nil, errors.Wrapf(err, "unknown custom encoding %q", cs.server.CustomEncoding)
	}
	return enc, nil
}
