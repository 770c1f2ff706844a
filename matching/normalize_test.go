package matching

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "lowercases and trims",
			text: "  Shape Of You  ",
			want: "shape of you",
		},
		{
			name: "strips bracketed promo group",
			text: "Ed Sheeran - Shape of You (Official Music Video)",
			want: "ed sheeran - shape of you",
		},
		{
			name: "strips square bracket promo group",
			text: "Blinding Lights [Official Audio]",
			want: "blinding lights",
		},
		{
			name: "keeps non promo bracket content",
			text: "One Dance (feat. Wizkid)",
			want: "one dance feat wizkid",
		},
		{
			name: "bare promo substrings",
			text: "Levitating Official Video HD",
			want: "levitating",
		},
		{
			name: "em dash and colon to spaces",
			text: "Daft Punk — Discovery: Track",
			want: "daft punk discovery track",
		},
		{
			name: "feat variants collapse",
			text: "Peaches ft. Daniel Caesar",
			want: "peaches feat daniel caesar",
		},
		{
			name: "featuring collapses",
			text: "Peaches featuring Daniel Caesar",
			want: "peaches feat daniel caesar",
		},
		{
			name: "collapses whitespace",
			text: "a   b\t c",
			want: "a b c",
		},
		{
			name: "trailing feat marker",
			text: "Song feat.",
			want: "song feat",
		},
		{
			name: "trailing ft marker",
			text: "Midnight City ft.",
			want: "midnight city feat",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.text); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "drops short tokens and feat",
			text: "One Dance (feat. Wizkid)",
			want: []string{"one", "dance", "wizkid"},
		},
		{
			name: "plain title",
			text: "Shape of You",
			want: []string{"shape", "of", "you"},
		},
		{
			name: "trailing feat marker dropped",
			text: "Song ft.",
			want: []string{"song"},
		},
		{
			name: "empty input",
			text: "",
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Tokenize(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
