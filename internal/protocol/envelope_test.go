package protocol

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Iron-Ham/mqfetch/internal/errors"
)

func TestChannel_Reserved(t *testing.T) {
	tests := []struct {
		ch       Channel
		reserved bool
		session  bool
		name     string
	}{
		{ChannelServer, true, false, "server"},
		{ChannelAccept, true, false, "accept"},
		{0, false, false, "0"},
		{FirstSessionChannel, false, true, "1"},
		{4242, false, true, "4242"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ch.IsReserved(); got != tt.reserved {
				t.Errorf("IsReserved() = %v, want %v", got, tt.reserved)
			}
			if got := tt.ch.IsSession(); got != tt.session {
				t.Errorf("IsSession() = %v, want %v", got, tt.session)
			}
			if got := tt.ch.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
		})
	}
}

func TestReservedChannelsOutsideSessionRange(t *testing.T) {
	// Session channels start at 1, so no allocated channel can equal a reserved one.
	for _, ch := range []Channel{ChannelServer, ChannelAccept} {
		if ch >= FirstSessionChannel {
			t.Errorf("reserved channel %d overlaps the session range", ch)
		}
	}
}

func TestParseChannel(t *testing.T) {
	ch, err := ParseChannel("-1")
	if err != nil {
		t.Fatalf("ParseChannel() error = %v", err)
	}
	if ch != ChannelServer {
		t.Errorf("ParseChannel() = %v, want %v", ch, ChannelServer)
	}
	if _, err := ParseChannel("abc"); err == nil {
		t.Error("ParseChannel(abc) should fail")
	}
}

func TestNewChunk(t *testing.T) {
	src := []byte("hi")
	env := NewChunk(7, src)
	src[0] = 'X'

	if env.Kind != KindDataChunk || env.Channel != 7 {
		t.Fatalf("NewChunk() = %+v", env)
	}
	if env.Chunk.Length != 2 || string(env.Chunk.Data) != "hi" {
		t.Errorf("chunk = %+v, want copy of \"hi\"", env.Chunk)
	}
	if env.Chunk.EOF() {
		t.Error("EOF() = true for non-empty chunk")
	}

	eof := NewChunk(7, nil)
	if !eof.Chunk.EOF() || eof.Chunk.Data != nil {
		t.Errorf("terminal chunk = %+v", eof.Chunk)
	}
}

func TestNewNotice_Truncates(t *testing.T) {
	env := NewNotice(3, strings.Repeat("x", MaxNoticeLen+10))
	if len(env.Notice.Text) != MaxNoticeLen {
		t.Errorf("len(Text) = %d, want %d", len(env.Notice.Text), MaxNoticeLen)
	}
	if err := env.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestNewNotice_KeepsUTF8Intact(t *testing.T) {
	env := NewNotice(3, strings.Repeat("é", MaxNoticeLen))
	text := env.Notice.Text
	if len(text) > MaxNoticeLen {
		t.Errorf("len(Text) = %d, want at most %d", len(text), MaxNoticeLen)
	}
	if !utf8.ValidString(text) {
		t.Errorf("Text %q is not valid UTF-8", text)
	}
	if !strings.HasSuffix(text, "...") {
		t.Errorf("Text %q should end in an ellipsis", text)
	}
}

func TestEnvelope_Validate(t *testing.T) {
	tests := []struct {
		name    string
		env     Envelope
		wantErr error
	}{
		{"connect", NewConnect(ConnectRequest{ReplyChannel: 2, Priority: 5, ResourcePath: "/tmp/a"}), nil},
		{"stop server", NewStopServer(), nil},
		{"identity", NewIdentity(2, "sess-1"), nil},
		{"chunk", NewChunk(2, []byte("abc")), nil},
		{"eof chunk", NewChunk(2, nil), nil},
		{"notice", NewNotice(2, "hello\n"), nil},
		{"stop client", NewStopClient(2), nil},
		{"unknown kind", Envelope{Channel: 2, Kind: Kind(99)}, errors.ErrUnknownKind},
		{"zero kind", Envelope{Channel: 2}, errors.ErrUnknownKind},
		{"connect without payload", Envelope{Channel: ChannelServer, Kind: KindConnect}, errors.ErrInvalidEnvelope},
		{"connect off server channel", Envelope{Channel: 5, Kind: KindConnect, Connect: &ConnectRequest{}}, errors.ErrInvalidEnvelope},
		{"empty identity", NewIdentity(2, ""), errors.ErrInvalidEnvelope},
		{"length mismatch", Envelope{Channel: 2, Kind: KindDataChunk, Chunk: &DataChunk{Length: 3, Data: []byte("a")}}, errors.ErrInvalidEnvelope},
		{"oversized chunk", NewChunk(2, bytes.Repeat([]byte{1}, MaxChunkSize+1)), errors.ErrInvalidEnvelope},
		{"stop server off channel", Envelope{Channel: 2, Kind: KindStopServer}, errors.ErrInvalidEnvelope},
		{
			"path too long",
			NewConnect(ConnectRequest{ReplyChannel: 2, ResourcePath: strings.Repeat("a", MaxPathLen+1)}),
			errors.ErrInvalidEnvelope,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestKind_String(t *testing.T) {
	if KindStopClient.String() != "stop_client" {
		t.Errorf("String() = %q", KindStopClient.String())
	}
	if Kind(200).String() != "kind(200)" {
		t.Errorf("String() = %q", Kind(200).String())
	}
	if Kind(200).Known() {
		t.Error("Known() = true for kind 200")
	}
}
