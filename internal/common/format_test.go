package common

import "testing"

func TestShortId(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "none"},
		{"tx-1", "tx-1"},
		{"temp-0123456789abcdef", "temp-0123456..."},
	}

	for _, tt := range tests {
		if got := ShortId(tt.in); got != tt.want {
			t.Errorf("Expected %q for %q, got %q", tt.want, tt.in, got)
		}
	}
}

func TestBoxPrefix(t *testing.T) {
	if BoxPrefix(true) == BoxPrefix(false) {
		t.Errorf("Expected different prefixes for the last item")
	}
}
