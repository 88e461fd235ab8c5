package graph

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplitIntoSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "empty input",
			text: "",
			want: []string(nil),
		},
		{
			name: "single sentence",
			text: "Hello world.",
			want: []string{"Hello world."},
		},
		{
			name: "multiple sentences",
			text: "Hello world. This is a test! How are you?",
			want: []string{
				"Hello world.",
				"This is a test!",
				"How are you?",
			},
		},
		{
			name: "sentences with empty lines",
			text: "First sentence.\n\nSecond sentence.\n\nThird sentence.",
			want: []string{
				"First sentence.",
				"Second sentence.",
				"Third sentence.",
			},
		},
		{
			name: "multi-line sentence",
			text: "This is a long\nsentence that spans\nmultiple lines.",
			want: []string{"This is a long sentence that spans multiple lines."},
		},
		{
			name: "text with no punctuation",
			text: "Just some text without punctuation\nMore text here",
			want: []string{"Just some text without punctuation More text here"},
		},
		{
			name: "blank line ends unpunctuated sentence",
			text: "Speaker one says hi\n\nSpeaker two answers.",
			want: []string{
				"Speaker one says hi",
				"Speaker two answers.",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitIntoSentences(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitIntoSentences() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestNormalizeTextEmptyInput(t *testing.T) {
	if _, err := NormalizeText("o200k_base", 100, "   \n\t "); err == nil {
		t.Fatal("expected error for empty input, got nil")
	}
}

func TestNormalizeTextSingleChunk(t *testing.T) {
	chunks, err := NormalizeText("o200k_base", 200, "Sarah met Mike at the lab. They discussed the project.")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0], "Sarah met Mike") {
		t.Errorf("chunk lost content: %q", chunks[0])
	}
}

func TestNormalizeTextSplitsOnBudget(t *testing.T) {
	var sb strings.Builder
	for range 40 {
		sb.WriteString("This sentence repeats to exceed the token budget of one chunk. ")
	}
	chunks, err := NormalizeText("o200k_base", 60, sb.String())
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if strings.TrimSpace(c) == "" {
			t.Errorf("chunk %d is empty", i)
		}
	}
}
