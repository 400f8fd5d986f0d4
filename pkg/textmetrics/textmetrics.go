// Package textmetrics computes readability and style metrics over plain text
// or HTML. Every function is pure; HTML is stripped before counting.
package textmetrics

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/pario-ai/orchestra/pkg/markup"
)

// WordsPerMinute is the reading speed used for ReadingMinutes.
const WordsPerMinute = 200

var (
	sentenceEnd = regexp.MustCompile(`[.!?]+`)
	blankLine   = regexp.MustCompile(`\n\s*\n`)
	mdHeading   = regexp.MustCompile(`(?m)^#{1,6}\s+\S`)

	irregularParticiples = []string{
		"been", "begun", "beaten", "bitten", "born", "borne", "bought", "brought",
		"broken", "built", "caught", "chosen", "cut", "done", "drawn", "driven",
		"eaten", "fed", "felt", "forgotten", "found", "given", "grown", "held",
		"hidden", "hit", "hurt", "kept", "known", "led", "left", "lost", "made",
		"met", "paid", "put", "read", "run", "said", "seen", "sent", "set",
		"shot", "shown", "sold", "spent", "spoken", "stolen", "taken", "taught",
		"thought", "thrown", "told", "torn", "understood", "won", "worn", "written",
	}
	passive = regexp.MustCompile(`(?i)\b(?:am|is|are|was|were|be|been|being)\s+(?:\w+ed|` +
		strings.Join(irregularParticiples, "|") + `)\b`)

	transitionWords = []string{
		"accordingly", "additionally", "afterward", "also", "although", "as a result",
		"besides", "but also", "consequently", "conversely", "finally", "first",
		"for example", "for instance", "furthermore", "hence", "however",
		"in addition", "in conclusion", "in contrast", "in fact", "in other words",
		"in short", "indeed", "instead", "likewise", "meanwhile", "moreover",
		"nevertheless", "next", "nonetheless", "on the other hand", "otherwise",
		"second", "similarly", "so that", "specifically", "subsequently",
		"that is", "then", "therefore", "thus", "to summarize", "ultimately",
		"whereas",
	}
	transition = compileLexicon(transitionWords)
)

// compileLexicon builds a case-insensitive word-boundary alternation,
// longest phrase first so multi-word entries win over their prefixes.
func compileLexicon(words []string) *regexp.Regexp {
	sorted := append([]string(nil), words...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	parts := make([]string, len(sorted))
	for i, w := range sorted {
		parts[i] = strings.ReplaceAll(regexp.QuoteMeta(w), ` `, `\s+`)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(parts, "|") + `)\b`)
}

// Report bundles every metric for one text.
type Report struct {
	Words                 int     `json:"words"`
	Sentences             int     `json:"sentences"`
	Syllables             int     `json:"syllables"`
	Paragraphs            int     `json:"paragraphs"`
	Headings              int     `json:"headings"`
	Links                 int     `json:"links"`
	Images                int     `json:"images"`
	FleschKincaid         float64 `json:"flesch_kincaid"`
	ReadingLevel          string  `json:"reading_level"`
	ComplexWordPercentage float64 `json:"complex_word_percentage"`
	AverageSentenceLength float64 `json:"average_sentence_length"`
	PassiveVoice          int     `json:"passive_voice"`
	TransitionWords       int     `json:"transition_words"`
	ReadingMinutes        float64 `json:"reading_minutes"`
}

// Analyze computes the full Report.
func Analyze(text string) Report {
	plain := markup.Text(text)
	ws := words(plain)
	sentences := countSentences(plain)
	outline := markup.Structure(text)

	syllables, hard := 0, 0
	for _, w := range ws {
		n := CountSyllables(w)
		syllables += n
		if n > 2 {
			hard++
		}
	}

	r := Report{
		Words:           len(ws),
		Sentences:       sentences,
		Syllables:       syllables,
		Paragraphs:      ParagraphCount(text),
		Headings:        HeadingCount(text),
		Links:           outline.Links,
		Images:          outline.Images,
		FleschKincaid:   fleschKincaid(len(ws), sentences, syllables),
		PassiveVoice:    len(passive.FindAllStringIndex(plain, -1)),
		TransitionWords: len(transition.FindAllStringIndex(plain, -1)),
		ReadingMinutes:  round2(float64(len(ws)) / WordsPerMinute),
	}
	r.ReadingLevel = ReadingLevel(r.FleschKincaid)
	if len(ws) > 0 {
		r.ComplexWordPercentage = round2(float64(hard) / float64(len(ws)) * 100)
	}
	if sentences > 0 {
		r.AverageSentenceLength = round2(float64(len(ws)) / float64(sentences))
	}
	return r
}

// CountWords counts whitespace-separated tokens containing a letter or
// digit.
func CountWords(text string) int {
	return len(words(markup.Text(text)))
}

// CountSentences counts runs of text terminated by '.', '!' or '?'. Trailing
// text without a terminator counts as a sentence.
func CountSentences(text string) int {
	return countSentences(markup.Text(text))
}

// CountSyllables estimates the syllables in one word: vowel groups, minus a
// trailing silent "e", at least 1 for any word with letters.
func CountSyllables(word string) int {
	w := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, word)
	if w == "" {
		return 0
	}

	count := 0
	inGroup := false
	for _, r := range w {
		if strings.ContainsRune("aeiouy", r) {
			if !inGroup {
				count++
			}
			inGroup = true
			continue
		}
		inGroup = false
	}
	if strings.HasSuffix(w, "e") && !strings.HasSuffix(w, "le") {
		count--
	}
	return max(count, 1)
}

// FleschKincaid returns the Flesch reading-ease score rounded to 2
// decimals, or 0 when the text has no words or no sentences.
func FleschKincaid(text string) float64 {
	plain := markup.Text(text)
	ws := words(plain)
	syl := 0
	for _, w := range ws {
		syl += CountSyllables(w)
	}
	return fleschKincaid(len(ws), countSentences(plain), syl)
}

func fleschKincaid(words, sentences, syllables int) float64 {
	if words == 0 || sentences == 0 {
		return 0
	}
	w, s, syl := float64(words), float64(sentences), float64(syllables)
	return round2(206.835 - 1.015*(w/s) - 84.6*(syl/w))
}

// ReadingLevel names the band a reading-ease score falls in.
func ReadingLevel(score float64) string {
	switch {
	case score >= 90:
		return "very easy"
	case score >= 80:
		return "easy"
	case score >= 70:
		return "fairly easy"
	case score >= 60:
		return "standard"
	case score >= 50:
		return "fairly difficult"
	case score >= 30:
		return "difficult"
	default:
		return "very difficult"
	}
}

// ComplexWordPercentage is the share of words with more than two syllables,
// as a percentage rounded to 2 decimals.
func ComplexWordPercentage(text string) float64 {
	ws := words(markup.Text(text))
	if len(ws) == 0 {
		return 0
	}
	hard := 0
	for _, w := range ws {
		if CountSyllables(w) > 2 {
			hard++
		}
	}
	return round2(float64(hard) / float64(len(ws)) * 100)
}

// PassiveVoiceCount counts "to be" + past participle constructions.
func PassiveVoiceCount(text string) int {
	return len(passive.FindAllStringIndex(markup.Text(text), -1))
}

// TransitionWordCount counts transition words and phrases.
func TransitionWordCount(text string) int {
	return len(transition.FindAllStringIndex(markup.Text(text), -1))
}

// AverageSentenceLength is words per sentence, rounded to 2 decimals.
func AverageSentenceLength(text string) float64 {
	plain := markup.Text(text)
	s := countSentences(plain)
	if s == 0 {
		return 0
	}
	return round2(float64(len(words(plain))) / float64(s))
}

// ParagraphCount counts <p> elements, or blank-line separated blocks in
// plain text.
func ParagraphCount(text string) int {
	if n := markup.Structure(text).Paragraphs; n > 0 {
		return n
	}
	n := 0
	for _, block := range blankLine.Split(markup.Text(text), -1) {
		if strings.TrimSpace(block) != "" {
			n++
		}
	}
	return n
}

// HeadingCount counts HTML headings and Markdown "#" headings.
func HeadingCount(text string) int {
	return markup.Structure(text).Headings + len(mdHeading.FindAllStringIndex(text, -1))
}

func words(plain string) []string {
	fields := strings.Fields(plain)
	out := fields[:0]
	for _, f := range fields {
		if strings.IndexFunc(f, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) >= 0 {
			out = append(out, f)
		}
	}
	return out
}

func countSentences(plain string) int {
	n := 0
	for _, part := range sentenceEnd.Split(plain, -1) {
		if len(words(part)) > 0 {
			n++
		}
	}
	return n
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
