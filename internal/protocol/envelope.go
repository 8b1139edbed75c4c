package protocol

import (
	"fmt"

	"github.com/Iron-Ham/mqfetch/internal/errors"
	"github.com/Iron-Ham/mqfetch/internal/util"
)

// Payload size limits.
const (
	// MaxChunkSize bounds the bytes carried by a single DataChunk.
	MaxChunkSize = 4096

	// MaxNoticeLen bounds the text carried by a PrintNotice.
	MaxNoticeLen = 256

	// MaxPathLen bounds the resource path in a ConnectRequest.
	MaxPathLen = 4096
)

// Kind discriminates the payload carried by an Envelope.
type Kind uint8

const (
	// KindConnect asks the dispatcher to start a session.
	KindConnect Kind = iota + 1
	// KindPrintNotice carries diagnostic text the client renders verbatim.
	KindPrintNotice
	// KindDataChunk carries a slice of the resource. Length 0 ends the data.
	KindDataChunk
	// KindSessionIdentity tells the client which session to cancel.
	KindSessionIdentity
	// KindStopClient ends the client's receive loop.
	KindStopClient
	// KindStopServer ends the dispatcher's accept loop.
	KindStopServer
)

var kindNames = map[Kind]string{
	KindConnect:         "connect",
	KindPrintNotice:     "print_notice",
	KindDataChunk:       "data_chunk",
	KindSessionIdentity: "session_identity",
	KindStopClient:      "stop_client",
	KindStopServer:      "stop_server",
}

// String returns the wire-independent name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Known reports whether k is part of the protocol.
func (k Kind) Known() bool {
	_, ok := kindNames[k]
	return ok
}

// ConnectRequest is sent once per session on ChannelServer.
type ConnectRequest struct {
	RequesterID  int64   `json:"requester_id" cbor:"1,keyasint"`
	ReplyChannel Channel `json:"reply_channel" cbor:"2,keyasint"`
	Priority     int     `json:"priority" cbor:"3,keyasint"`
	ResourcePath string  `json:"resource_path" cbor:"4,keyasint"`
}

// SessionIdentity is the first envelope a client sees on its own channel.
type SessionIdentity struct {
	SessionID string `json:"session_id" cbor:"1,keyasint"`
}

// DataChunk carries part of the resource. Length always equals len(Data).
type DataChunk struct {
	Length int    `json:"length" cbor:"1,keyasint"`
	Data   []byte `json:"data,omitempty" cbor:"2,keyasint,omitempty"`
}

// EOF reports whether the chunk marks the end of the data.
func (c DataChunk) EOF() bool {
	return c.Length == 0
}

// PrintNotice is diagnostic text for the client.
type PrintNotice struct {
	Text string `json:"text" cbor:"1,keyasint"`
}

// Envelope is the unit stored in the mailbox. Exactly one payload field is
// set, matching Kind; StopClient and StopServer carry none.
type Envelope struct {
	Channel  Channel          `json:"channel" cbor:"1,keyasint"`
	Kind     Kind             `json:"kind" cbor:"2,keyasint"`
	Connect  *ConnectRequest  `json:"connect,omitempty" cbor:"3,keyasint,omitempty"`
	Identity *SessionIdentity `json:"identity,omitempty" cbor:"4,keyasint,omitempty"`
	Chunk    *DataChunk       `json:"chunk,omitempty" cbor:"5,keyasint,omitempty"`
	Notice   *PrintNotice     `json:"notice,omitempty" cbor:"6,keyasint,omitempty"`
}

// NewConnect builds a connection request addressed to the dispatcher.
func NewConnect(req ConnectRequest) Envelope {
	return Envelope{Channel: ChannelServer, Kind: KindConnect, Connect: &req}
}

// NewStopServer builds the envelope that ends the dispatcher loop.
func NewStopServer() Envelope {
	return Envelope{Channel: ChannelServer, Kind: KindStopServer}
}

// NewIdentity builds the handshake envelope for a session channel.
func NewIdentity(ch Channel, sessionID string) Envelope {
	return Envelope{Channel: ch, Kind: KindSessionIdentity, Identity: &SessionIdentity{SessionID: sessionID}}
}

// NewChunk copies data into a DataChunk envelope. A nil or empty slice
// produces the terminal zero-length chunk.
func NewChunk(ch Channel, data []byte) Envelope {
	chunk := &DataChunk{Length: len(data)}
	if len(data) > 0 {
		chunk.Data = append([]byte(nil), data...)
	}
	return Envelope{Channel: ch, Kind: KindDataChunk, Chunk: chunk}
}

// NewNotice builds a PrintNotice envelope, truncating text to MaxNoticeLen
// bytes on a UTF-8 boundary.
func NewNotice(ch Channel, text string) Envelope {
	text = util.TruncateBytes(text, MaxNoticeLen)
	return Envelope{Channel: ch, Kind: KindPrintNotice, Notice: &PrintNotice{Text: text}}
}

// NewStopClient builds the authoritative end-of-session envelope.
func NewStopClient(ch Channel) Envelope {
	return Envelope{Channel: ch, Kind: KindStopClient}
}

// Validate checks that the payload agrees with Kind and respects the size limits.
func (e Envelope) Validate() error {
	if !e.Kind.Known() {
		return errors.NewProtocolError("unrecognized envelope", errors.ErrUnknownKind).
			WithKind(e.Kind.String()).WithChannel(int64(e.Channel))
	}

	invalid := func(msg string) error {
		return errors.NewProtocolError(msg, errors.ErrInvalidEnvelope).
			WithKind(e.Kind.String()).WithChannel(int64(e.Channel))
	}

	switch e.Kind {
	case KindConnect:
		if e.Connect == nil {
			return invalid("missing connect payload")
		}
		if e.Channel != ChannelServer {
			return invalid("connect must be sent on the server channel")
		}
		if len(e.Connect.ResourcePath) > MaxPathLen {
			return invalid("resource path too long")
		}
	case KindSessionIdentity:
		if e.Identity == nil || e.Identity.SessionID == "" {
			return invalid("missing session identity")
		}
	case KindDataChunk:
		if e.Chunk == nil {
			return invalid("missing chunk payload")
		}
		if e.Chunk.Length != len(e.Chunk.Data) {
			return invalid("chunk length does not match data")
		}
		if e.Chunk.Length > MaxChunkSize {
			return invalid("chunk exceeds maximum size")
		}
	case KindPrintNotice:
		if e.Notice == nil {
			return invalid("missing notice payload")
		}
		if len(e.Notice.Text) > MaxNoticeLen {
			return invalid("notice exceeds maximum length")
		}
	case KindStopServer:
		if e.Channel != ChannelServer {
			return invalid("stop server must be sent on the server channel")
		}
	}
	return nil
}
