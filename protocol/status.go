// Package protocol implements the TcpRest Protocol V2 wire codec (§4.3):
// request/response encoding and decoding, overload-aware method signatures,
// the security envelope, and exception classification/reconstruction.
package protocol

import "github.com/tcprest/tcprest/internal/errorutil"

// Status is the response status code of §3/§4.3.4.
type Status int

const (
	StatusSuccess  Status = 0
	StatusBusiness Status = 1
	StatusServer   Status = 2
	StatusProtocol Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusBusiness:
		return "BUSINESS"
	case StatusServer:
		return "SERVER"
	case StatusProtocol:
		return "PROTOCOL"
	default:
		return "UNKNOWN"
	}
}

// Version is the literal protocol tag that opens every wire line.
const Version = "V2"

// ErrProtocol is the sentinel wrapped by malformed-frame, unknown-
// class/method, parameter-parse, and oversize/overnested-array faults (§7).
const ErrProtocol errorutil.Error = "protocol error"

// ErrTimeout is the sentinel wrapped when a client read does not complete
// within its configured deadline (§7).
const ErrTimeout errorutil.Error = "timeout"
