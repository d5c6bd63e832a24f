package awmkit

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// MessageLength is the fixed wire size of every encoded message.
const MessageLength = 16

// Supported protocol versions.
const (
	Version1 = 1
	Version2 = 2
)

// ErrUnsupportedVersion is returned by Encode for any version other than 1
// or 2, or for a v1 encode with a non-zero key slot.
var ErrUnsupportedVersion = errors.New("unsupported message version")

// ErrInvalidMessageLength is returned by Decode/Verify when the input is
// not exactly MessageLength bytes.
var ErrInvalidMessageLength = errors.New("invalid message length")

// ErrHmacMismatch is returned by Decode/Verify when the recomputed HMAC
// does not match the truncated tail carried in the message.
var ErrHmacMismatch = errors.New("hmac mismatch")

// Message is the decoded, authenticated form of a 16-byte wire message.
type Message struct {
	Version          int
	TimestampMinutes uint32
	TimestampUTC     time.Time
	KeySlot          int
	Tag              string
	Identity         string
}

// EncodeOptions configures Encode. Slot is only meaningful for Version2;
// Timestamp defaults to time.Now().UTC() when zero, truncated to minutes.
type EncodeOptions struct {
	Version   int
	Tag       string
	Key       []byte
	Slot      int
	Timestamp time.Time
}

// Encode packs tag, slot, and timestamp into a 16-byte authenticated
// message, keyed by HMAC-SHA256(key, ...).
func Encode(opts EncodeOptions) ([]byte, error) {
	if !TagVerify(opts.Tag) {
		return nil, newErr(CodeInvalidTag, ErrInvalidTag)
	}
	if opts.Version != Version1 && opts.Version != Version2 {
		return nil, newErr(CodeInvalidOutputFormat, fmt.Errorf("%w: %d", ErrUnsupportedVersion, opts.Version))
	}
	if opts.Version == Version1 && opts.Slot != 0 {
		return nil, newErr(CodeInvalidOutputFormat, fmt.Errorf("%w: v1 requires slot 0, got %d", ErrUnsupportedVersion, opts.Slot))
	}
	if opts.Slot < 0 || opts.Slot > 31 {
		return nil, newErr(CodeInvalidOutputFormat, fmt.Errorf("slot %d out of range [0,31]", opts.Slot))
	}

	ts := opts.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	tsMinutes := uint32(ts.Unix() / 60)

	if opts.Version == Version1 {
		return encodeV1(opts.Tag, opts.Key, tsMinutes), nil
	}
	return encodeV2(opts.Tag, opts.Key, byte(opts.Slot), tsMinutes), nil
}

func encodeV1(tag string, key []byte, tsMinutes uint32) []byte {
	buf := make([]byte, MessageLength)
	buf[0] = Version1
	binary.BigEndian.PutUint32(buf[1:5], tsMinutes)
	packTagBytes(buf[5:10], tag)

	mac := hmac.New(sha256.New, key)
	mac.Write(buf[:10])
	sum := mac.Sum(nil)
	copy(buf[10:16], sum[:6])
	return buf
}

// encodeV2 packs version(5b)‖slot(5b)‖timestamp(32b)‖tag(40b)‖reserved(8b)
// — 90 bits total — followed by a 38-bit truncated HMAC tail, for 128 bits
// (16 bytes). The reserved byte resolves the bit-count gap between the
// per-field layout and the "HMAC covers the first 90 bits" rule; see
// DESIGN.md for the writeup.
func encodeV2(tag string, key []byte, slot byte, tsMinutes uint32) []byte {
	w := newBitWriter(128)
	w.writeBits(uint64(Version2), 5)
	w.writeBits(uint64(slot), 5)
	w.writeBits(uint64(tsMinutes), 32)
	for i := 0; i < 8; i++ {
		v, _ := alphabetValue(tag[i])
		w.writeBits(uint64(v), 5)
	}
	w.writeBits(0, 8) // reserved, zero

	// First 12 bytes now hold the 90-bit preimage zero-padded to 96 bits.
	preimage := w.buf[:12]
	mac := hmac.New(sha256.New, key)
	mac.Write(preimage)
	sum := mac.Sum(nil)
	tail := leading38Bits(sum)

	w.seek(90)
	w.writeBits(tail, 38)
	return w.buf
}

// leading38Bits extracts the leading 38 bits of a 32-byte HMAC-SHA256
// output as a right-aligned uint64.
func leading38Bits(sum []byte) uint64 {
	return uint64(sum[0])<<30 | uint64(sum[1])<<22 | uint64(sum[2])<<14 | uint64(sum[3])<<6 | uint64(sum[4])>>2
}

func packTagBytes(dst []byte, tag string) {
	w := &bitWriter{buf: dst}
	for i := 0; i < 8; i++ {
		v, _ := alphabetValue(tag[i])
		w.writeBits(uint64(v), 5)
	}
}

func unpackTagBytes(src []byte) string {
	r := &bitReader{buf: src}
	chars := make([]byte, 8)
	for i := 0; i < 8; i++ {
		chars[i] = alphabet[r.readBits(5)]
	}
	restoreTagPadding(chars)
	return string(chars)
}

// restoreTagPadding rewrites the trailing run of value-0 characters among
// positions 1..6 of a decoded tag to padChar. On the wire '_' and 'A' both
// pack to 0, so decoding reads that run back as right-padding; position 0
// is always kept because an identity is never empty. An identity ending in
// 'A' loses those trailing 'A's, and a '_' inside an identity reads back as
// 'A'; the checksum is the same either way.
func restoreTagPadding(chars []byte) {
	for i := 6; i >= 1 && chars[i] == alphabet[0]; i-- {
		chars[i] = padChar
	}
}

// Decode unpacks and authenticates msg against key, auto-dispatching on
// the version carried in the first byte. Error ordering is
// length → tag validity → HMAC.
func Decode(msg []byte, key []byte) (Message, error) {
	rec, err := decodeUnverifiedAndVersion(msg)
	if err != nil {
		return Message{}, err
	}
	if !TagVerify(rec.Tag) {
		return Message{}, newErr(CodeInvalidTag, ErrInvalidTag)
	}
	ok, err := verifyInternal(msg, key, rec.Version)
	if err != nil {
		return Message{}, err
	}
	if !ok {
		return Message{}, newErr(CodeHmacMismatch, ErrHmacMismatch)
	}
	return rec, nil
}

// DecodeUnverified unpacks msg without checking the HMAC, for tooling that
// doesn't hold the signing key.
func DecodeUnverified(msg []byte) (Message, error) {
	rec, err := decodeUnverifiedAndVersion(msg)
	if err != nil {
		return Message{}, err
	}
	if !TagVerify(rec.Tag) {
		return Message{}, newErr(CodeInvalidTag, ErrInvalidTag)
	}
	return rec, nil
}

// Verify recomputes the HMAC only; it does not allocate a Message.
func Verify(msg []byte, key []byte) (bool, error) {
	if len(msg) != MessageLength {
		return false, newErr(CodeInvalidMessageLength, ErrInvalidMessageLength)
	}
	version := int(msg[0] >> 3) // top 5 bits of byte 0 if v2; byte 0 itself if v1 (==1, <32)
	if msg[0] == Version1 {
		version = Version1
	}
	return verifyInternal(msg, key, version)
}

func decodeUnverifiedAndVersion(msg []byte) (Message, error) {
	if len(msg) != MessageLength {
		return Message{}, newErr(CodeInvalidMessageLength, ErrInvalidMessageLength)
	}

	if msg[0] == Version1 {
		tsMinutes := binary.BigEndian.Uint32(msg[1:5])
		tag := unpackTagBytes(msg[5:10])
		return Message{
			Version:          Version1,
			TimestampMinutes: tsMinutes,
			TimestampUTC:     time.Unix(int64(tsMinutes)*60, 0).UTC(),
			KeySlot:          0,
			Tag:              tag,
			Identity:         identityOrEmpty(tag),
		}, nil
	}

	r := newBitReader(msg)
	version := int(r.readBits(5))
	if version != Version2 {
		return Message{}, newErr(CodeInvalidOutputFormat, fmt.Errorf("%w: byte0=%#x", ErrUnsupportedVersion, msg[0]))
	}
	slot := int(r.readBits(5))
	tsMinutes := uint32(r.readBits(32))
	chars := make([]byte, 8)
	for i := 0; i < 8; i++ {
		chars[i] = alphabet[r.readBits(5)]
	}
	restoreTagPadding(chars)
	tag := string(chars)

	return Message{
		Version:          Version2,
		TimestampMinutes: tsMinutes,
		TimestampUTC:     time.Unix(int64(tsMinutes)*60, 0).UTC(),
		KeySlot:          slot,
		Tag:              tag,
		Identity:         identityOrEmpty(tag),
	}, nil
}

// constantTimeEqualUint64 compares two right-aligned bit values in
// constant time, for the v2 truncated-HMAC comparison that must not leak
// timing.
func constantTimeEqualUint64(a, b uint64) bool {
	var ab, bb [8]byte
	binary.BigEndian.PutUint64(ab[:], a)
	binary.BigEndian.PutUint64(bb[:], b)
	return subtle.ConstantTimeCompare(ab[:], bb[:]) == 1
}

func identityOrEmpty(tag string) string {
	ident, err := TagIdentity(tag)
	if err != nil {
		return ""
	}
	return ident
}

func verifyInternal(msg []byte, key []byte, version int) (bool, error) {
	if len(msg) != MessageLength {
		return false, newErr(CodeInvalidMessageLength, ErrInvalidMessageLength)
	}
	switch version {
	case Version1:
		mac := hmac.New(sha256.New, key)
		mac.Write(msg[:10])
		sum := mac.Sum(nil)
		return hmac.Equal(sum[:6], msg[10:16]), nil
	case Version2:
		preimage := make([]byte, 12)
		copy(preimage, msg[:12])
		preimage[11] &= 0xC0 // clear trailing 6 bits: bits 90-95 must be zero for the preimage
		mac := hmac.New(sha256.New, key)
		mac.Write(preimage)
		sum := mac.Sum(nil)
		wantTail := leading38Bits(sum)

		r := newBitReader(msg)
		r.seek(90)
		gotTail := r.readBits(38)
		return constantTimeEqualUint64(wantTail, gotTail), nil
	default:
		return false, newErr(CodeInvalidOutputFormat, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version))
	}
}
