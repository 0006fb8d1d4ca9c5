package prompt

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func newTestConfirmer(input string, interactive bool) (*Confirmer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &Confirmer{
		in:          strings.NewReader(input),
		out:         out,
		interactive: func() bool { return interactive },
	}, out
}

func TestConfirmAnswers(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes ", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"maybe\n", false},
	}
	for _, tc := range cases {
		c, out := newTestConfirmer(tc.input, true)
		got, err := c.Confirm("Proceed?")
		if err != nil {
			t.Fatalf("input %q: unexpected error: %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("input %q: got %v, want %v", tc.input, got, tc.want)
		}
		if out.String() != "Proceed? [y/N]: " {
			t.Fatalf("unexpected prompt %q", out.String())
		}
	}
}

func TestConfirmRequiresTerminal(t *testing.T) {
	c, _ := newTestConfirmer("y\n", false)
	if _, err := c.Confirm("Proceed?"); !errors.Is(err, ErrNoTerminal) {
		t.Fatalf("expected ErrNoTerminal, got %v", err)
	}
}
