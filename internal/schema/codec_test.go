package schema

import (
	"bytes"
	"strings"
	"testing"

	"github.com/quantfold/tip/errs"
)

func TestEncodeDecodeRoundTripIsByteStable(t *testing.T) {
	first, err := Encode(validEvent())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(first)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	second, err := Encode(decoded)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("round trip not byte stable:\n first=%s\nsecond=%s", first, second)
	}
}

func TestEncodeSortsKeysAndUsesCompactSeparators(t *testing.T) {
	out, err := Encode(validEvent())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s := string(out)
	if strings.Contains(s, ": ") || strings.Contains(s, ", ") {
		t.Fatalf("expected compact separators, got %s", s)
	}
	ordered := []string{`"confidence"`, `"dedupeKey"`, `"entityId"`, `"eventId"`, `"eventType"`, `"payload"`, `"payloadRefs"`, `"schemaVersion"`, `"severity"`, `"source"`, `"symbol"`, `"tsEvent"`, `"tsIngested"`}
	last := -1
	for _, key := range ordered {
		idx := strings.Index(s, key)
		if idx < 0 {
			t.Fatalf("expected key %s in output: %s", key, s)
		}
		if idx < last {
			t.Fatalf("key %s out of sorted order: %s", key, s)
		}
		last = idx
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	out, err := Encode(validEvent())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	tampered := strings.Replace(string(out), `"severity"`, `"surprise":1,"severity"`, 1)
	if _, err := Decode([]byte(tampered)); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	} else if !errs.IsCode(err, errs.CodeInvalidEvent) {
		t.Fatalf("expected invalid_event code, got %v", err)
	}
}

func TestDecodeRejectsZonelessTimestamps(t *testing.T) {
	out, err := Encode(validEvent())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	naive := strings.Replace(string(out), "2023-11-14T22:13:20Z", "2023-11-14T22:13:20", 1)
	if naive == string(out) {
		t.Fatalf("fixture did not contain expected timestamp")
	}
	if _, err := Decode([]byte(naive)); err == nil {
		t.Fatalf("expected zone-less timestamp to be rejected")
	}
}

func TestStableEncodeSortsNestedMaps(t *testing.T) {
	got, err := StableEncode(map[string]any{
		"b": 1,
		"a": map[string]any{"z": true, "m": "x"},
	})
	if err != nil {
		t.Fatalf("stable encode: %v", err)
	}
	want := `{"a":{"m":"x","z":true},"b":1}`
	if string(got) != want {
		t.Fatalf("stable encode mismatch: got %s want %s", got, want)
	}
}

func TestContentHashIsOrderInsensitive(t *testing.T) {
	h1, err := ContentHash(map[string]any{"score": 420, "title": "eom"})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := ContentHash(map[string]any{"title": "eom", "score": 420})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("equal content must hash identically: %s vs %s", h1, h2)
	}
	h3, err := ContentHash(map[string]any{"title": "eom", "score": 421})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 == h3 {
		t.Fatalf("different content must hash differently")
	}
	if len(h1) != 64 {
		t.Fatalf("expected hex sha256, got %q", h1)
	}
}
