package awmkit

import "strings"

// alphabet is the RFC 4648 Base32 alphabet used throughout the tag and
// message layers. Unlike stdlib encoding/base32, tags use '_' as their pad
// character, so the stdlib encoder/decoder isn't a fit here — see
// tag_suggest and the checksum formula below for the parts that are
// genuinely bespoke to this codec.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// padChar is the tag padding character. It is not part of alphabet; it is
// accepted at any of a tag's first seven positions, as right-padding after
// the identity or inside an identity where '-' was normalized to '_'.
const padChar = '_'

// alphabetValue returns the position of c in alphabet, treating padChar as
// value 0 for the checksum formula. ok is false for any byte that is
// neither in alphabet nor padChar.
func alphabetValue(c byte) (value byte, ok bool) {
	if c == padChar {
		return 0, true
	}
	idx := strings.IndexByte(alphabet, c)
	if idx < 0 {
		return 0, false
	}
	return byte(idx), true
}

// isAlphabetOrPad reports whether c is a valid tag character.
func isAlphabetOrPad(c byte) bool {
	_, ok := alphabetValue(c)
	return ok
}

// checksum computes the single trailing Base32 character for the first
// seven characters of a tag: sum = Σ (i+1)·value_i for i in [0,7), and the
// checksum character is alphabet[sum mod 32]. '_' contributes value 0.
func checksum(first7 string) (byte, bool) {
	if len(first7) != 7 {
		return 0, false
	}
	var sum int
	for i := 0; i < 7; i++ {
		v, ok := alphabetValue(first7[i])
		if !ok {
			return 0, false
		}
		sum += (i + 1) * int(v)
	}
	return alphabet[sum%32], true
}

// normalizeIdentityInput upper-cases s and rewrites '-' to '_', the
// normalization rule every identity/tag entry point applies before
// validating characters.
func normalizeIdentityInput(s string) string {
	s = strings.ToUpper(s)
	return strings.ReplaceAll(s, "-", "_")
}
