package igsession

import "fmt"

// shortcodeAlphabet is the platform's base-64 alphabet for shortcodes:
// A-Z (0-25), a-z (26-51), 0-9 (52-61), '-' (62), '_' (63).
const shortcodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

var shortcodeIndex = func() map[byte]int64 {
	m := make(map[byte]int64, len(shortcodeAlphabet))
	for i := 0; i < len(shortcodeAlphabet); i++ {
		m[shortcodeAlphabet[i]] = int64(i)
	}
	return m
}()

// ErrInvalidShortcode is returned when a shortcode contains a character
// outside the platform's base-64 alphabet. Per spec §4.4, the caller must
// surface this, not retry it.
type ErrInvalidShortcode struct {
	Shortcode string
	Char      byte
}

func (e *ErrInvalidShortcode) Error() string {
	return fmt.Sprintf("igsession: invalid shortcode %q: character %q is not in the shortcode alphabet", e.Shortcode, e.Char)
}

// ShortcodeToPK converts a shortcode to its numeric media PK:
// Σ index(ch) · 64^(len-1-i). Invalid characters raise ErrInvalidShortcode.
func ShortcodeToPK(shortcode string) (int64, error) {
	var pk int64
	for i := 0; i < len(shortcode); i++ {
		idx, ok := shortcodeIndex[shortcode[i]]
		if !ok {
			return 0, &ErrInvalidShortcode{Shortcode: shortcode, Char: shortcode[i]}
		}
		pk = pk*64 + idx
	}
	return pk, nil
}
