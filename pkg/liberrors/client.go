// Package liberrors contains errors returned by the client.
package liberrors

import (
	"fmt"

	"github.com/bluenviron/camgrab/pkg/base"
)

// ErrClientWrongStatusCode is returned in case of a wrong status code.
type ErrClientWrongStatusCode struct {
	Method  base.Method
	Code    base.StatusCode
	Message string
}

// Error implements the error interface.
func (e ErrClientWrongStatusCode) Error() string {
	return fmt.Sprintf("%s: wrong status code: %d (%s)", e.Method, e.Code, e.Message)
}

// ErrClientCSeqMismatch is returned when the CSeq of a response doesn't match the one of the request.
type ErrClientCSeqMismatch struct {
	Expected string
	Value    string
}

// Error implements the error interface.
func (e ErrClientCSeqMismatch) Error() string {
	return fmt.Sprintf("CSeq mismatch, expected %s, got %s", e.Expected, e.Value)
}

// ErrClientContentLengthMissing is returned in case the Content-Length header is missing.
type ErrClientContentLengthMissing struct{}

// Error implements the error interface.
func (e ErrClientContentLengthMissing) Error() string {
	return "Content-Length header is missing"
}

// ErrClientContentTypeUnsupported is returned in case the Content-Type header is unsupported.
type ErrClientContentTypeUnsupported struct {
	CT base.HeaderValue
}

// Error implements the error interface.
func (e ErrClientContentTypeUnsupported) Error() string {
	return fmt.Sprintf("unsupported Content-Type header '%v'", e.CT)
}

// ErrClientSDPInvalid is returned in case the SDP is invalid.
type ErrClientSDPInvalid struct {
	Err error
}

// Error implements the error interface.
func (e ErrClientSDPInvalid) Error() string {
	return fmt.Sprintf("invalid SDP: %v", e.Err)
}

// Unwrap returns the wrapped error.
func (e ErrClientSDPInvalid) Unwrap() error {
	return e.Err
}

// ErrClientNoH264Media is returned when the session description doesn't contain a H264 media.
type ErrClientNoH264Media struct{}

// Error implements the error interface.
func (e ErrClientNoH264Media) Error() string {
	return "the stream doesn't contain any H264 media"
}

// ErrClientSessionHeaderInvalid is returned in case of an invalid session header.
type ErrClientSessionHeaderInvalid struct {
	Err error
}

// Error implements the error interface.
func (e ErrClientSessionHeaderInvalid) Error() string {
	return fmt.Sprintf("invalid session header: %v", e.Err)
}

// ErrClientTransportHeaderInvalid is returned in case the transport header is invalid.
type ErrClientTransportHeaderInvalid struct {
	Err error
}

// Error implements the error interface.
func (e ErrClientTransportHeaderInvalid) Error() string {
	return fmt.Sprintf("invalid transport header: %v", e.Err)
}

// ErrClientTransportProtocolUnsupported is returned when the server doesn't accept UDP.
type ErrClientTransportProtocolUnsupported struct {
	Value string
}

// Error implements the error interface.
func (e ErrClientTransportProtocolUnsupported) Error() string {
	return fmt.Sprintf("server replied with unsupported transport protocol %s", e.Value)
}

// ErrClientServerPortsNotProvided is returned in case the server ports have not been provided.
type ErrClientServerPortsNotProvided struct{}

// Error implements the error interface.
func (e ErrClientServerPortsNotProvided) Error() string {
	return "server ports have not been provided"
}

// ErrClientServerPortsZero is returned when one of the server ports is zero.
type ErrClientServerPortsZero struct{}

// Error implements the error interface.
func (e ErrClientServerPortsZero) Error() string {
	return "server ports must not be zero"
}

// ErrClientClientPortsMismatch is returned when the server confirms client ports different from the requested ones.
type ErrClientClientPortsMismatch struct {
	Expected [2]int
	Value    [2]int
}

// Error implements the error interface.
func (e ErrClientClientPortsMismatch) Error() string {
	return fmt.Sprintf("wrong client ports, expected %v, got %v", e.Expected, e.Value)
}

// ErrClientUDPPortsNotConsecutive is returned when the two UDP ports are not consecutive.
type ErrClientUDPPortsNotConsecutive struct{}

// Error implements the error interface.
func (e ErrClientUDPPortsNotConsecutive) Error() string {
	return "rtcpPort must be rtpPort + 1"
}

// ErrClientNoUDPPacketsRecently is returned when no UDP packets have been received at all.
type ErrClientNoUDPPacketsRecently struct{}

// Error implements the error interface.
func (e ErrClientNoUDPPacketsRecently) Error() string {
	return "no UDP packets received (maybe there's a firewall/NAT in between)"
}

// ErrClientUDPTimeout is returned when UDP packets have been received previously
// but now nothing is being received.
type ErrClientUDPTimeout struct{}

// Error implements the error interface.
func (e ErrClientUDPTimeout) Error() string {
	return "UDP timeout"
}
