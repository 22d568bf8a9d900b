package ble

import (
	"errors"
	"testing"
)

func TestDecodeTag(t *testing.T) {
	cases := []struct {
		name    string
		raw     []byte
		want    string
		wantErr error
	}{
		{"empty", nil, "", ErrEmptyTag},
		{"zero length", []byte{}, "", ErrEmptyTag},
		{"whitespace only", []byte("  \r\n"), "", ErrEmptyTag},
		{"plain tag", []byte("E4F8E400"), "E4F8E400", nil},
		{"trailing newline", []byte("ARVIND001\n"), "ARVIND001", nil},
		{"marker prefix", []byte("RFID: E4F8E400"), "E4F8E400", nil},
		{"marker no space", []byte("RFID:ABC123"), "ABC123", nil},
		{"marker only", []byte("RFID:"), "", ErrEmptyTag},
		{"binary payload", []byte{0xff, 0xfe, 0x01}, "fffe01", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeTag(tc.raw)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("tag = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecodeTagBinaryDeterministic(t *testing.T) {
	raw := []byte{0xde, 0xad, 0xbe, 0xef, 0x80}
	first, err := DecodeTag(raw)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := DecodeTag(raw)
	if first != second || first == "" {
		t.Errorf("binary decode not deterministic: %q vs %q", first, second)
	}
}

func TestSessionStateString(t *testing.T) {
	want := map[State]string{
		StateDisconnected:     "disconnected",
		StateConnecting:       "connecting",
		StateServiceDiscovery: "service_discovery",
		StateSubscribing:      "subscribing",
		StateListening:        "listening",
	}
	for state, name := range want {
		if state.String() != name {
			t.Errorf("State(%d).String() = %q, want %q", state, state.String(), name)
		}
	}
}
