package protocol

import (
	"strings"

	"github.com/tcprest/tcprest/internal/errorutil"
	"github.com/tcprest/tcprest/security"
)

func wrapSecurity(msg string) error {
	return errorutil.NewWrapperError(security.ErrSecurity, msg)
}

// appendEnvelope appends the optional trailing CHK segment (§4.3.6) to line,
// computed over line's exact bytes. SIG is never emitted by this codec; it
// is accepted on decode only, for forward compatibility with the §9 open
// question.
func (c *Codec) appendEnvelope(line string) string {
	if c.Security.ChecksumKind == 0 {
		return line
	}
	return line + "|CHK:" + c.Security.Checksum([]byte(line))
}

// stripEnvelope splits a raw wire line into its pipe-separated head fields,
// after removing the optional trailing SIG and CHK segments. A SIG segment
// is dropped without being verified. CHK is required and verified when the
// codec's ChecksumKind is set; otherwise a CHK segment is dropped unchecked.
// Pipe-delimited fields never themselves contain '|' (every variable field
// is Base64 or a bare status digit), so a plain split is exact.
func (c *Codec) stripEnvelope(line string) ([]string, error) {
	if line == "" {
		return nil, errorutil.NewWrapperError(ErrProtocol, "empty line")
	}
	segs := strings.Split(line, "|")

	if len(segs) > 0 && strings.HasPrefix(segs[len(segs)-1], "SIG:") {
		segs = segs[:len(segs)-1]
	}

	var chk string
	haveChk := false
	if len(segs) > 0 && strings.HasPrefix(segs[len(segs)-1], "CHK:") {
		chk = strings.TrimPrefix(segs[len(segs)-1], "CHK:")
		haveChk = true
		segs = segs[:len(segs)-1]
	}

	if c.Security.ChecksumKind != 0 {
		if !haveChk {
			return nil, wrapSecurity("missing required CHK segment")
		}
		body := strings.Join(segs, "|")
		if !c.Security.VerifyChecksum([]byte(body), chk) {
			return nil, wrapSecurity("checksum mismatch")
		}
	}

	return segs, nil
}
