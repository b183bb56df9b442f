// Package security implements the TcpRest wire envelope's integrity
// checksum and class whitelist, and the class/method identifier grammar
// that keeps wire delimiters out of unescaped fields (§4.3.6).
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"regexp"
	"strings"

	"github.com/tcprest/tcprest/internal/errorutil"
)

// ChecksumKind selects the CHK segment's algorithm.
type ChecksumKind int

const (
	ChecksumNone ChecksumKind = iota
	ChecksumCRC32
	ChecksumHMACSHA256
)

// ErrSecurity is the sentinel all security-layer faults wrap; the server
// pipeline maps it to a status-3 PROTOCOL/SECURITY response (§4.6, §7).
const ErrSecurity errorutil.Error = "security violation"

// Config is an immutable snapshot of a server or client's security policy.
// The zero value is the permissive default: no checksum, no whitelist.
type Config struct {
	ChecksumKind ChecksumKind
	HMACSecret   []byte // required iff ChecksumKind == ChecksumHMACSHA256

	WhitelistEnabled bool
	AllowedClasses   []string // exact names, or "pkg.*" wildcard suffixes

	// SignatureKind is carried for forward compatibility with the SIG
	// trailing segment (§9 open question); the codec strips a SIG segment
	// without verifying it and never emits one, regardless of this field's
	// value.
	SignatureKind string
}

// Checksum computes the hex CHK digest of body under cfg's algorithm. It
// panics if called with ChecksumNone; callers should guard with
// cfg.ChecksumKind != ChecksumNone.
func (cfg Config) Checksum(body []byte) string {
	switch cfg.ChecksumKind {
	case ChecksumCRC32:
		return fmt.Sprintf("%08x", crc32.ChecksumIEEE(body))
	case ChecksumHMACSHA256:
		mac := hmac.New(sha256.New, cfg.HMACSecret)
		mac.Write(body)
		return hex.EncodeToString(mac.Sum(nil))
	default:
		panic("security: Checksum called with ChecksumNone")
	}
}

// VerifyChecksum reports whether chk (lowercase hex, as found on the wire)
// matches the checksum of body under cfg. Equal-length hex comparison is
// not constant-time here; HMAC tamper-evidence in this protocol defends
// against accidental corruption and casual tampering by an intermediary, not
// a timing side channel against a colocated attacker.
func (cfg Config) VerifyChecksum(body []byte, chk string) bool {
	if cfg.ChecksumKind == ChecksumNone {
		return true
	}
	want := cfg.Checksum(body)
	return strings.EqualFold(want, chk)
}

// IsWhitelisted reports whether canonicalClassName is permitted to be
// invoked under cfg. When the whitelist is disabled, everything is allowed.
func (cfg Config) IsWhitelisted(canonicalClassName string) bool {
	if !cfg.WhitelistEnabled {
		return true
	}
	for _, entry := range cfg.AllowedClasses {
		if entry == canonicalClassName {
			return true
		}
		if pkg, ok := strings.CutSuffix(entry, "*"); ok {
			if strings.HasPrefix(canonicalClassName, pkg) {
				return true
			}
		}
	}
	return false
}

// identifier grammars: canonical class names and bare method names. A
// canonical class name here is a Go import path plus a dotted type name
// (reflect.Type.PkgPath() + "." + Name, e.g.
// "github.com/tcprest/tcprest/server.echoResource") — the Go analogue of the
// JVM host's dotted class name, so '/' is a legal path-segment separator
// alongside '.', not a wire delimiter; '|', whitespace, ".." and any
// character outside the identifier alphabet are still rejected, preventing
// delimiter/path injection even though the wire already base64-encodes
// everything downstream of these fields.
var (
	classNameRE  = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$.-]*(/[A-Za-z_$][A-Za-z0-9_$.-]*)*$`)
	methodNameRE = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
)

// ValidClassName reports whether name is a well-formed canonical class name:
// a slash-separated Go import path whose last segment is a dotted type name.
func ValidClassName(name string) bool {
	if name == "" || strings.Contains(name, "..") {
		return false
	}
	return classNameRE.MatchString(name)
}

// ValidMethodName reports whether name is a well-formed bare identifier.
func ValidMethodName(name string) bool {
	if name == "" {
		return false
	}
	return methodNameRE.MatchString(name)
}
