package textmetrics

import (
	"context"
	"testing"

	"github.com/pario-ai/orchestra/pkg/cache"
	"github.com/pario-ai/orchestra/pkg/cache/memory"
)

func TestFleschKincaid(t *testing.T) {
	// 3 words, 1 sentence, 3 syllables: 206.835 - 1.015*3 - 84.6*1
	if got := FleschKincaid("The cat sat."); got != 119.19 {
		t.Errorf("FleschKincaid = %v, want 119.19", got)
	}
	if got := FleschKincaid(""); got != 0 {
		t.Errorf("empty = %v, want 0", got)
	}
	if got := FleschKincaid("<p></p>"); got != 0 {
		t.Errorf("markup only = %v, want 0", got)
	}
}

func TestCountSyllables(t *testing.T) {
	tests := map[string]int{
		"the":       1,
		"cat":       1,
		"make":      1,
		"table":     2,
		"syllable":  3,
		"beautiful": 3,
		"rhythm":    1,
		"queue":     1,
		"Orange!":   2,
		"":          0,
		"42":        0,
	}
	for word, want := range tests {
		if got := CountSyllables(word); got != want {
			t.Errorf("CountSyllables(%q) = %d, want %d", word, got, want)
		}
	}
}

func TestCounts(t *testing.T) {
	if got := CountWords("<p>Hello, world!</p> - 42"); got != 3 {
		t.Errorf("CountWords = %d", got)
	}
	if got := CountSentences("One. Two! Three? Four"); got != 4 {
		t.Errorf("CountSentences = %d", got)
	}
	if got := CountSentences("..."); got != 0 {
		t.Errorf("CountSentences(...) = %d", got)
	}
	if got := AverageSentenceLength("One two. Three four five six."); got != 3 {
		t.Errorf("AverageSentenceLength = %v", got)
	}
	if got := ComplexWordPercentage("beautiful cat"); got != 50 {
		t.Errorf("ComplexWordPercentage = %v", got)
	}
}

func TestPassiveAndTransitions(t *testing.T) {
	if got := PassiveVoiceCount("The ball was thrown. The cake IS baked. He runs."); got != 2 {
		t.Errorf("PassiveVoiceCount = %d, want 2", got)
	}
	text := "However, the plan worked. On the other hand, costs rose. In addition it was fast."
	if got := TransitionWordCount(text); got != 3 {
		t.Errorf("TransitionWordCount = %d, want 3", got)
	}
	if got := TransitionWordCount("Thusly nonexistent"); got != 0 {
		t.Errorf("partial words matched: %d", got)
	}
}

func TestStructure(t *testing.T) {
	if got := ParagraphCount("<p>a</p><p>b</p>"); got != 2 {
		t.Errorf("html paragraphs = %d", got)
	}
	if got := ParagraphCount("a\n\nb\n \n\nc"); got != 3 {
		t.Errorf("plain paragraphs = %d", got)
	}
	if got := HeadingCount("<h1>T</h1><h2>S</h2>"); got != 2 {
		t.Errorf("html headings = %d", got)
	}
	if got := HeadingCount("# Title\ntext\n## Sub"); got != 2 {
		t.Errorf("markdown headings = %d", got)
	}
}

func TestAnalyze(t *testing.T) {
	r := Analyze(`<h1>Title</h1><p>The cat sat.</p><p>See <a href="/x">this</a> <img src="a.png">.</p>`)
	if r.Headings != 1 || r.Paragraphs != 2 || r.Links != 1 || r.Images != 1 {
		t.Errorf("unexpected structure: %+v", r)
	}
	if r.Words == 0 || r.Sentences == 0 || r.ReadingLevel == "" {
		t.Errorf("unexpected report: %+v", r)
	}
}

func TestReadingLevel(t *testing.T) {
	if ReadingLevel(119.19) != "very easy" || ReadingLevel(65) != "standard" || ReadingLevel(-10) != "very difficult" {
		t.Error("unexpected reading levels")
	}
}

func TestAnalyzerCaches(t *testing.T) {
	ctx := context.Background()
	c := cache.New(memory.New(0), cache.Options{Enabled: true})
	a := NewAnalyzer(c, 0)

	first := a.Analyze(ctx, "The cat sat.")
	second := a.Analyze(ctx, "The cat sat.")
	if first != second {
		t.Errorf("cached report differs: %+v vs %+v", first, second)
	}
	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Hits != 1 || stats.Misses != 1 || stats.Total != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	var nilAnalyzer *Analyzer
	if got := nilAnalyzer.Analyze(ctx, "The cat sat."); got.FleschKincaid != 119.19 {
		t.Errorf("nil analyzer = %+v", got)
	}
}
