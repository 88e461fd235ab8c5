package graph

import (
	"testing"

	"github.com/CaptainCrouton89/Saturn-sub003/pkg/common"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "lower-cases", in: "Sarah Chen", want: "sarahchen"},
		{name: "strips punctuation", in: "sarah-chen!", want: "sarahchen"},
		{name: "keeps digits", in: "Area 51", want: "area51"},
		{name: "unicode letters survive", in: "Zoë", want: "zoë"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeName(tt.in); got != tt.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDeriveEntityKeyDeterministic(t *testing.T) {
	a := DeriveEntityKey("Sarah Chen", common.KindPerson, "user-1")
	b := DeriveEntityKey("Sarah Chen", common.KindPerson, "user-1")
	if a != b {
		t.Errorf("same inputs produced different keys: %s vs %s", a, b)
	}
	if c := DeriveEntityKey("sarah chen", common.KindPerson, "user-1"); c != a {
		t.Errorf("normalization-equivalent name produced different key")
	}
}

func TestDeriveEntityKeyDiffers(t *testing.T) {
	base := DeriveEntityKey("Sarah", common.KindPerson, "user-1")
	if got := DeriveEntityKey("Sara", common.KindPerson, "user-1"); got == base {
		t.Errorf("different name produced same key")
	}
	if got := DeriveEntityKey("Sarah", common.KindConcept, "user-1"); got == base {
		t.Errorf("different kind produced same key")
	}
	if got := DeriveEntityKey("Sarah", common.KindPerson, "user-2"); got == base {
		t.Errorf("different user produced same key")
	}
}
