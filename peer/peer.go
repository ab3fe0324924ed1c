// Package peer defines the contract a plugin handler uses to invoke
// another capability through the host (a "peer invoke"), and the
// rejecting default every runtime starts with.
package peer

import (
	"fmt"

	"github.com/tetraplex/capmesh/wire"
)

const KindPeerInvokeNotSupported = "PeerInvokeNotSupported"

// Error is a typed peer-invocation failure.
type Error struct {
	Kind    string
	CapUrn  string
	Message string
}

func (e *Error) Error() string { return e.Message }

// Router is the contract for calling another capability: begin a request
// for capUrn with the given request id and get back the frame stream the
// callee will write its response onto.
type Router interface {
	BeginRequest(capUrn string, reqID wire.MessageId) (<-chan *wire.Frame, error)
}

// NoPeerRouter is the default Router: it rejects every call. A host or
// runtime that never wires in real peer-invoke support uses this
// unconditionally rather than leaving the capability unset.
type NoPeerRouter struct{}

// BeginRequest always fails with PeerInvokeNotSupported, naming capUrn.
func (NoPeerRouter) BeginRequest(capUrn string, _ wire.MessageId) (<-chan *wire.Frame, error) {
	return nil, &Error{
		Kind:    KindPeerInvokeNotSupported,
		CapUrn:  capUrn,
		Message: fmt.Sprintf("peer invocation of %q is not supported", capUrn),
	}
}
