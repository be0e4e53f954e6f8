package domain

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"
)

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		wantErr error
	}{
		{"exact limit", bytes.Repeat([]byte("a"), MaxPayloadSize), nil},
		{"one over limit", bytes.Repeat([]byte("a"), MaxPayloadSize+1), ErrPayloadTooLarge},
		{"empty", nil, ErrPayloadEmpty},
		{"ascii whitespace only", []byte(" \t\r\n\f "), ErrPayloadEmpty},
		{"padded text", []byte("  hi  "), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(tt.payload)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidatePayload() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewClip_IDsAreOrdered(t *testing.T) {
	a, err := NewClip([]byte("first"), "term")
	if err != nil {
		t.Fatalf("NewClip: %v", err)
	}
	b, err := NewClip([]byte("second"), "")
	if err != nil {
		t.Fatalf("NewClip: %v", err)
	}

	if a.ID.Compare(b.ID) >= 0 {
		t.Errorf("ids not increasing: %s >= %s", a.ID, b.ID)
	}
	if d := time.Since(a.Time()); d < 0 || d > time.Minute {
		t.Errorf("epoch %d not near now", a.Epoch)
	}
	if a.Application != "term" {
		t.Errorf("Application = %q, want term", a.Application)
	}
}

func TestNode_Addresses(t *testing.T) {
	public := OriginPublic
	local := net.ParseIP("192.168.1.5")
	pub := net.ParseIP("203.0.113.7")

	tests := []struct {
		name string
		node Node
		want []IPOrigin
	}{
		{"local first by default", Node{LocalIP: local, PublicIP: pub}, []IPOrigin{OriginLocal, OriginPublic}},
		{"preferred public", Node{LocalIP: local, PublicIP: pub, PreferredOrigin: &public}, []IPOrigin{OriginPublic, OriginLocal}},
		{"same address once", Node{LocalIP: local, PublicIP: local}, []IPOrigin{OriginLocal}},
		{"missing public", Node{LocalIP: local}, []IPOrigin{OriginLocal}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.node.Addresses()
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].Origin != tt.want[i] {
					t.Errorf("[%d] origin = %v, want %v", i, got[i].Origin, tt.want[i])
				}
			}
		})
	}
}
