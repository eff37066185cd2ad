package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeStyle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"Neo-Traditional!!", "neo traditional"},
		{"  Black & Grey  ", "black grey"},
		{"FINE_LINE", "fine line"},
		{"Japanese (Irezumi)", "japanese irezumi"},
		{"realism", "realism"},
		{"!!!", ""},
		{"", ""},
		{"Trash--Polka 2.0", "trash polka 2 0"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, NormalizeStyle(tc.in), "input %q", tc.in)
	}
}

func TestNormalizeStyleIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"Neo-Traditional!!", "  dotwork ", "Géométrique", "A\tB\nC", "x--y__z", "ÄÖÜ", "100% Custom", " ", "KELVIN",
	}
	for _, in := range inputs {
		once := NormalizeStyle(in)
		require.Equal(t, once, NormalizeStyle(once), "input %q", in)
	}
}

func TestNormalizeStylesDropsEmptiesAndDuplicates(t *testing.T) {
	t.Parallel()

	got := NormalizeStyles([]string{"Blackwork", "black-work", "BLACKWORK", "??", "Dotwork"})
	require.Equal(t, []string{"blackwork", "black work", "dotwork"}, got)
	require.Nil(t, NormalizeStyles(nil))
}
