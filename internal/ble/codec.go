package ble

import (
	"encoding/hex"
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrEmptyTag reports a payload that decoded to nothing usable. The event
// must still be audit-logged by the caller; it just never reaches the
// processor as a valid tag.
var ErrEmptyTag = errors.New("ble: empty tag payload")

// tagMarker is the literal prefix some ESP32 firmware revisions emit
// before the tag value.
const tagMarker = "RFID:"

// DecodeTag normalizes a raw notification payload into a tag identifier.
// UTF-8 payloads are trimmed and stripped of the optional RFID: marker;
// binary payloads fall back to a deterministic hex rendering so that every
// physical tap leaves a trace. Never panics.
func DecodeTag(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", ErrEmptyTag
	}
	if !utf8.Valid(raw) {
		return hex.EncodeToString(raw), nil
	}
	text := strings.TrimSpace(string(raw))
	if i := strings.Index(text, tagMarker); i >= 0 {
		text = strings.TrimSpace(text[i+len(tagMarker):])
	}
	if text == "" {
		return "", ErrEmptyTag
	}
	return text, nil
}
