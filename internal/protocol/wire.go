package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/bft-labs/clipd/internal/domain"
)

// MaxFrameSize caps a frame body in bytes.
const MaxFrameSize = 64 << 20

const headerSize = 4

type wireMessage struct {
	Kind  Kind       `msgpack:"kind"`
	Clip  *wireClip  `msgpack:"clip,omitempty"`
	Node  *wireNode  `msgpack:"node,omitempty"`
	Clips []wireClip `msgpack:"clips,omitempty"`
}

type wireClip struct {
	ID          []byte `msgpack:"id"`
	Epoch       int64  `msgpack:"epoch"`
	Payload     []byte `msgpack:"payload"`
	Application string `msgpack:"application,omitempty"`
}

type wireNode struct {
	DeviceID        string `msgpack:"device_id"`
	Name            string `msgpack:"name,omitempty"`
	LocalIP         string `msgpack:"local_ip,omitempty"`
	PublicIP        string `msgpack:"public_ip,omitempty"`
	LastSeen        *int64 `msgpack:"last_seen,omitempty"`
	LastSync        *int64 `msgpack:"last_sync,omitempty"`
	PreferredOrigin *uint8 `msgpack:"preferred_origin,omitempty"`
}

// Marshal encodes m without the length prefix.
func Marshal(m Message) ([]byte, error) {
	w := wireMessage{Kind: m.Kind}
	switch m.Kind {
	case KindNewClip:
		c := toWireClip(m.Clip)
		w.Clip = &c
	case KindSyncRequest, KindJoinNetwork:
		n := toWireNode(m.Node)
		w.Node = &n
	case KindSyncResponse:
		w.Clips = make([]wireClip, len(m.Clips))
		for i, e := range m.Clips {
			w.Clips[i] = toWireClip(e)
		}
	default:
		return nil, fmt.Errorf("marshal: unknown message kind %d", m.Kind)
	}
	return msgpack.Marshal(&w)
}

// Unmarshal decodes a frame body.
func Unmarshal(b []byte) (Message, error) {
	var w wireMessage
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}

	m := Message{Kind: w.Kind}
	switch w.Kind {
	case KindNewClip:
		if w.Clip == nil {
			return Message{}, fmt.Errorf("decode message: NewClip without clip")
		}
		c, err := fromWireClip(*w.Clip)
		if err != nil {
			return Message{}, err
		}
		m.Clip = c
	case KindSyncRequest, KindJoinNetwork:
		if w.Node == nil || w.Node.DeviceID == "" {
			return Message{}, fmt.Errorf("decode message: %s without node", w.Kind)
		}
		m.Node = fromWireNode(*w.Node)
	case KindSyncResponse:
		m.Clips = make([]domain.ClipEntry, 0, len(w.Clips))
		for _, wc := range w.Clips {
			c, err := fromWireClip(wc)
			if err != nil {
				return Message{}, err
			}
			m.Clips = append(m.Clips, c)
		}
	default:
		return Message{}, fmt.Errorf("decode message: unknown kind %d", w.Kind)
	}
	return m, nil
}

// WriteMessage writes one length-prefixed frame.
func WriteMessage(w io.Writer, m Message) error {
	body, err := Marshal(m)
	if err != nil {
		return err
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", domain.ErrFrameTooLarge, len(body))
	}

	frame := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[headerSize:], body)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed frame. io.EOF is returned unwrapped
// when the stream ends cleanly between frames.
func ReadMessage(r io.Reader) (Message, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return Message{}, fmt.Errorf("%w: %d bytes", domain.ErrFrameTooLarge, size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, fmt.Errorf("read frame body: %w", err)
	}
	return Unmarshal(body)
}

// Exchange writes req and reads one reply, bounding both by timeout.
func Exchange(conn net.Conn, req Message, timeout time.Duration) (Message, error) {
	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return Message{}, err
		}
		defer conn.SetDeadline(time.Time{})
	}
	if err := WriteMessage(conn, req); err != nil {
		return Message{}, err
	}
	return ReadMessage(conn)
}

// clipOverhead bounds the per-entry encoding cost beyond payload and
// application bytes: map header, keys, id, epoch and length prefixes.
const clipOverhead = 64

// ClipWireSize is an upper bound on the encoded size of e inside a message.
func ClipWireSize(e domain.ClipEntry) int {
	return len(e.Payload) + len(e.Application) + clipOverhead
}

func toWireClip(e domain.ClipEntry) wireClip {
	return wireClip{
		ID:          e.ID[:],
		Epoch:       e.Epoch,
		Payload:     e.Payload,
		Application: e.Application,
	}
}

func fromWireClip(w wireClip) (domain.ClipEntry, error) {
	var e domain.ClipEntry
	if len(w.ID) != len(e.ID) {
		return e, fmt.Errorf("decode message: clip id has %d bytes", len(w.ID))
	}
	copy(e.ID[:], w.ID)
	e.Epoch = w.Epoch
	e.Payload = w.Payload
	e.Application = w.Application
	return e, nil
}

func toWireNode(n domain.Node) wireNode {
	w := wireNode{DeviceID: n.DeviceID, Name: n.Name}
	if len(n.LocalIP) > 0 {
		w.LocalIP = n.LocalIP.String()
	}
	if len(n.PublicIP) > 0 {
		w.PublicIP = n.PublicIP.String()
	}
	if n.LastSeen != nil {
		v := n.LastSeen.UnixMilli()
		w.LastSeen = &v
	}
	if n.LastSync != nil {
		v := n.LastSync.UnixMilli()
		w.LastSync = &v
	}
	if n.PreferredOrigin != nil {
		v := uint8(*n.PreferredOrigin)
		w.PreferredOrigin = &v
	}
	return w
}

func fromWireNode(w wireNode) domain.Node {
	n := domain.Node{
		DeviceID: w.DeviceID,
		Name:     w.Name,
		LocalIP:  net.ParseIP(w.LocalIP),
		PublicIP: net.ParseIP(w.PublicIP),
	}
	if w.LastSeen != nil {
		t := time.UnixMilli(*w.LastSeen)
		n.LastSeen = &t
	}
	if w.LastSync != nil {
		t := time.UnixMilli(*w.LastSync)
		n.LastSync = &t
	}
	if w.PreferredOrigin != nil {
		o := domain.IPOrigin(*w.PreferredOrigin)
		n.PreferredOrigin = &o
	}
	return n
}
