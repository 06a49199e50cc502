package identity

import (
	"errors"
	"testing"
)

func TestNormalizeUsername(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "  Alice ", want: "alice"},
		{in: "BOB", want: "bob"},
		{in: "carol_01", want: "carol_01"},
	}
	for _, tc := range cases {
		if got := NormalizeUsername(tc.in); got != tc.want {
			t.Fatalf("NormalizeUsername(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestValidateUsername(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in string
		ok bool
	}{
		{in: "alice", ok: true},
		{in: "  Alice ", ok: true},
		{in: "a.b-c_9", ok: true},
		{in: "ab", ok: false},
		{in: "has space", ok: false},
		{in: "emoji🔔", ok: false},
		{in: "", ok: false},
	}
	for _, tc := range cases {
		err := ValidateUsername(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("ValidateUsername(%q) unexpected err: %v", tc.in, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("ValidateUsername(%q) expected ErrInvalidInput, got %v", tc.in, err)
		}
	}
}
