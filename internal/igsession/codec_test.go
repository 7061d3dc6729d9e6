package igsession

import "testing"

func TestShortcodeToPKBoundaries(t *testing.T) {
	cases := []struct {
		shortcode string
		want      int64
	}{
		{"A", 0},
		{"B", 1},
		{"_", 63},
		{"BA", 64},
	}
	for _, c := range cases {
		got, err := ShortcodeToPK(c.shortcode)
		if err != nil {
			t.Fatalf("ShortcodeToPK(%q): %v", c.shortcode, err)
		}
		if got != c.want {
			t.Errorf("ShortcodeToPK(%q) = %d, want %d", c.shortcode, got, c.want)
		}
	}
}

func TestShortcodeToPKInvalidChar(t *testing.T) {
	_, err := ShortcodeToPK("abc!def")
	if err == nil {
		t.Fatal("expected error for invalid character")
	}
	var invalidErr *ErrInvalidShortcode
	if !asInvalidShortcode(err, &invalidErr) {
		t.Fatalf("expected ErrInvalidShortcode, got %T", err)
	}
}

func asInvalidShortcode(err error, target **ErrInvalidShortcode) bool {
	e, ok := err.(*ErrInvalidShortcode)
	if !ok {
		return false
	}
	*target = e
	return true
}
