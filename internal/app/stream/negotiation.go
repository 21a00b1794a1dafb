package stream

import (
	"github.com/pion/webrtc/v4"
)

// phase is the signalling progress of one publisher or listener.
type phase int

const (
	// phaseIdle: the slot is reserved and the publisher has not sent an offer yet.
	phaseIdle phase = iota

	// phasePublishing: the publisher's offer is with the SFU.
	phasePublishing

	// phaseSubscribing: a listener handle is being attached and the SFU offer is pending.
	phaseSubscribing

	// phaseAwaitingAnswer: the listener holds the SFU offer.
	phaseAwaitingAnswer

	// phaseStarting: the listener's answer is with the SFU.
	phaseStarting

	// phaseEstablished: media can flow.
	phaseEstablished
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phasePublishing:
		return "publishing"
	case phaseSubscribing:
		return "subscribing"
	case phaseAwaitingAnswer:
		return "awaiting_answer"
	case phaseStarting:
		return "starting"
	case phaseEstablished:
		return "established"
	}
	return "unknown"
}

// negotiation tracks one participant's handshake. Candidates that arrive before the SFU
// handle exists are held in pending and flushed once it does.
type negotiation struct {
	phase   phase
	pending []webrtc.ICECandidateInit
}

// advance moves from one phase to the next and reports whether the negotiation was in
// the expected phase.
func (n *negotiation) advance(from, to phase) bool {
	if n.phase != from {
		return false
	}
	n.phase = to
	return true
}

// queue holds c until the handle exists.
func (n *negotiation) queue(c webrtc.ICECandidateInit) {
	n.pending = append(n.pending, c)
}

// drain returns and forgets queued candidates.
func (n *negotiation) drain() []webrtc.ICECandidateInit {
	out := n.pending
	n.pending = nil
	return out
}
