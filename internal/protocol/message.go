// Package protocol is the peer wire format: each frame is a 4-byte
// big-endian length followed by one MessagePack-encoded Message.
package protocol

import (
	"fmt"

	"github.com/bft-labs/clipd/internal/domain"
)

// Kind tags a Message.
type Kind uint8

const (
	KindNewClip Kind = iota + 1
	KindSyncRequest
	KindSyncResponse
	KindJoinNetwork
)

// String returns the message kind name.
func (k Kind) String() string {
	switch k {
	case KindNewClip:
		return "NewClip"
	case KindSyncRequest:
		return "SyncRequest"
	case KindSyncResponse:
		return "SyncResponse"
	case KindJoinNetwork:
		return "JoinNetwork"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Message is one peer message. Which field is meaningful depends on Kind:
// Clip for NewClip, Node for SyncRequest and JoinNetwork, Clips for
// SyncResponse.
type Message struct {
	Kind  Kind
	Clip  domain.ClipEntry
	Node  domain.Node
	Clips []domain.ClipEntry
}

// NewClip announces a freshly captured entry.
func NewClip(e domain.ClipEntry) Message {
	return Message{Kind: KindNewClip, Clip: e}
}

// SyncRequest asks the receiver for entries the sender has not seen.
func SyncRequest(self domain.Node) Message {
	return Message{Kind: KindSyncRequest, Node: self}
}

// SyncResponse carries entries answering a SyncRequest.
func SyncResponse(entries []domain.ClipEntry) Message {
	return Message{Kind: KindSyncResponse, Clips: entries}
}

// JoinNetwork introduces the sender to the receiver.
func JoinNetwork(self domain.Node) Message {
	return Message{Kind: KindJoinNetwork, Node: self}
}
