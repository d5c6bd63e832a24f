package awmkit

import "testing"

func TestValidLanguage(t *testing.T) {
	cases := []struct {
		lang string
		want bool
	}{
		{"", true},
		{LangSimplifiedChinese, true},
		{LangEnglishUS, true},
		{"fr-FR", false},
		{"en-us", false},
	}
	for _, c := range cases {
		if got := ValidLanguage(c.lang); got != c.want {
			t.Errorf("ValidLanguage(%q) = %v, want %v", c.lang, got, c.want)
		}
	}
}
