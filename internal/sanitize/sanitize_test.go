package sanitize

import "testing"

func TestText(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"empty", "", ""},
		{"plain", "Alice Martin", "Alice Martin"},
		{"tags", "<b>Alice</b> <i>Martin</i>", "Alice Martin"},
		{"script", `Alice<script>alert("x")</script>`, "Alice"},
		{"entities", "Tom &amp; Jerry", "Tom & Jerry"},
		{"bare ampersand", "Tom & Jerry", "Tom & Jerry"},
		{"whitespace", "  Alice \n\t Martin  ", "Alice Martin"},
		{"accents", "Élodie Dupré", "Élodie Dupré"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Text(tc.in); got != tc.want {
				t.Errorf("Text(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
