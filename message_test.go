package awmkit

import (
	"bytes"
	"testing"
	"time"
)

func testKey(b byte) []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = b
	}
	return key
}

func TestEncodeDecodeRoundTripV1(t *testing.T) {
	tag, _ := TagNew("SAKUZY")
	key := testKey(0x11)
	ts := time.Unix(28_000_000*60, 0).UTC()

	msg, err := Encode(EncodeOptions{Version: Version1, Tag: tag, Key: key, Timestamp: ts})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(msg) != MessageLength {
		t.Fatalf("encoded length = %d, want %d", len(msg), MessageLength)
	}

	rec, err := Decode(msg, key)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rec.Version != Version1 || rec.Tag != tag || rec.TimestampMinutes != 28_000_000 || rec.KeySlot != 0 {
		t.Errorf("decoded record = %+v", rec)
	}
}

func TestEncodeDecodeRoundTripV2(t *testing.T) {
	tag, _ := TagNew("SAKUZY")
	key := testKey(0x22)
	ts := time.Unix(28_000_000*60, 0).UTC()

	msg, err := Encode(EncodeOptions{Version: Version2, Tag: tag, Key: key, Slot: 3, Timestamp: ts})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	rec, err := Decode(msg, key)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rec.Version != Version2 || rec.Tag != tag || rec.TimestampMinutes != 28_000_000 || rec.KeySlot != 3 {
		t.Errorf("decoded record = %+v", rec)
	}
	if rec.Identity != "SAKUZY" {
		t.Errorf("decoded identity = %q, want SAKUZY", rec.Identity)
	}
}

func TestEncodeV1AndV2Differ(t *testing.T) {
	tag, _ := TagNew("SAKUZY")
	key := testKey(0x33)
	ts := time.Unix(28_000_000*60, 0).UTC()

	v1, err := Encode(EncodeOptions{Version: Version1, Tag: tag, Key: key, Timestamp: ts})
	if err != nil {
		t.Fatalf("Encode v1: %v", err)
	}
	v2, err := Encode(EncodeOptions{Version: Version2, Tag: tag, Key: key, Slot: 0, Timestamp: ts})
	if err != nil {
		t.Fatalf("Encode v2: %v", err)
	}
	if bytes.Equal(v1, v2) {
		t.Error("v1 and v2 encodings of the same tag/key/timestamp are identical")
	}
}

func TestDecodeUnverifiedIgnoresKey(t *testing.T) {
	tag, _ := TagNew("SAKUZY")
	msg, err := Encode(EncodeOptions{Version: Version2, Tag: tag, Key: testKey(0x44), Slot: 5})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	rec, err := DecodeUnverified(msg)
	if err != nil {
		t.Fatalf("DecodeUnverified: %v", err)
	}
	if rec.Tag != tag || rec.KeySlot != 5 {
		t.Errorf("unverified record = %+v", rec)
	}
}

func TestDecodeWrongKeyFails(t *testing.T) {
	tag, _ := TagNew("SAKUZY")
	msg, err := Encode(EncodeOptions{Version: Version2, Tag: tag, Key: testKey(0x55), Slot: 1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(msg, testKey(0x56)); !errorsIsHmacMismatch(err) {
		t.Errorf("Decode with wrong key: err = %v, want HmacMismatch", err)
	}
}

func TestDecodeBitFlipInTailFails(t *testing.T) {
	tag, _ := TagNew("SAKUZY")
	key := testKey(0x77)
	msg, err := Encode(EncodeOptions{Version: Version2, Tag: tag, Key: key, Slot: 2})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	msg[15] ^= 0x01
	if _, err := Decode(msg, key); !errorsIsHmacMismatch(err) {
		t.Errorf("Decode after tail bit flip: err = %v, want HmacMismatch", err)
	}
}

func TestDecodeInvalidLength(t *testing.T) {
	_, err := Decode(make([]byte, 10), testKey(1))
	code, ok := CodeOf(err)
	if !ok || code != CodeInvalidMessageLength {
		t.Errorf("Decode with short buffer: err = %v, want InvalidMessageLength", err)
	}
}

func TestVerify(t *testing.T) {
	tag, _ := TagNew("SAKUZY")
	key := testKey(0x88)
	msg, err := Encode(EncodeOptions{Version: Version1, Tag: tag, Key: key})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	ok, err := Verify(msg, key)
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v; want true, nil", ok, err)
	}
	ok, err = Verify(msg, testKey(0x89))
	if err != nil || ok {
		t.Fatalf("Verify with wrong key = %v, %v; want false, nil", ok, err)
	}
}

func TestEncodeRejectsV1WithNonZeroSlot(t *testing.T) {
	tag, _ := TagNew("SAKUZY")
	if _, err := Encode(EncodeOptions{Version: Version1, Tag: tag, Key: testKey(1), Slot: 2}); err == nil {
		t.Error("Encode accepted v1 with non-zero slot")
	}
}

func TestEncodeRejectsInvalidTag(t *testing.T) {
	if _, err := Encode(EncodeOptions{Version: Version2, Tag: "AB", Key: testKey(1)}); err == nil {
		t.Error("Encode accepted an invalid tag")
	}
}

func errorsIsHmacMismatch(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == CodeHmacMismatch
}
