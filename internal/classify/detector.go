package classify

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultDenylist contains transcription artifacts that speech models emit on
// silence or noise (EN + RU). Matching is exact after normalization, never by
// substring, so legitimate speech containing one of these words still passes.
var DefaultDenylist = []string{
	// English
	"you", "thank you", "thanks", "thanks for watching",
	"subtitles", "subtitles by", "subs by", "mbc",
	"copyright", "allô", "allo", "bye", "goodbye",
	"the end", "thank you for watching",
	"please subscribe", "like and subscribe",
	"so", "i'm sorry", "oh", "ah", "hmm", "huh",
	"okay", "ok", "yes", "no", "yeah", "right",
	"sync corrected", "elderman", "elder_man",
	"www", "http", "com",
	// Russian
	"субтитры", "продолжение следует", "спасибо",
	"спасибо за просмотр", "подписывайтесь",
	"до свидания", "конец", "редактор",
	"переводчик", "субтитры сделал",
}

// DefaultPatterns matches longer boilerplate that exact matching cannot
// cover: subtitle credits with editor names, URLs, channel sign-offs.
var DefaultPatterns = []string{
	`^редактор субтитров`,
	`^субтитры (сделал|подготовил|создавал)`,
	`^subtitles by`,
	`^subs by`,
	`^sync corrected by`,
	`(www\.|https?://)\S+`,
}

// Detector flags model output that has no basis in the source audio or text:
// known boilerplate artifacts, degenerate repetition, single-character spam.
// A Detector is immutable after construction and safe for concurrent use.
type Detector struct {
	denylist map[string]struct{}
	patterns []*regexp.Regexp
}

// NewDetector builds a detector from a deny-list of exact phrases and a list
// of boilerplate regex patterns. Patterns are matched case-insensitively
// against normalized (lowercased, punctuation-trimmed) text.
func NewDetector(denylist []string, patterns []string) (*Detector, error) {
	d := &Detector{
		denylist: make(map[string]struct{}, len(denylist)),
		patterns: make([]*regexp.Regexp, 0, len(patterns)),
	}

	for _, entry := range denylist {
		d.denylist[strings.ToLower(strings.TrimSpace(entry))] = struct{}{}
	}

	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid boilerplate pattern %q: %w", p, err)
		}
		d.patterns = append(d.patterns, re)
	}

	return d, nil
}

// NewDefaultDetector builds a detector seeded with the built-in deny-list
// and boilerplate patterns.
func NewDefaultDetector() *Detector {
	d, err := NewDetector(DefaultDenylist, DefaultPatterns)
	if err != nil {
		// The built-in patterns are compile-tested; this cannot happen.
		panic(err)
	}
	return d
}

// IsHallucination reports whether the text is likely model-generated output
// with no basis in the audio: empty or near-empty text, an exact deny-list
// match, boilerplate, or pathological repetition. It must be applied to both
// the transcript and the translation, since either model can hallucinate
// independently.
func (d *Detector) IsHallucination(text string) bool {
	stripped := normalize(text)

	if utf8.RuneCountInString(stripped) < 3 {
		return true
	}

	if _, ok := d.denylist[stripped]; ok {
		return true
	}

	for _, re := range d.patterns {
		if re.MatchString(stripped) {
			return true
		}
	}

	words := strings.Fields(stripped)
	if len(words) >= 4 {
		distinct := make(map[string]struct{}, len(words))
		for _, w := range words {
			distinct[w] = struct{}{}
		}
		if float64(len(distinct)) <= float64(len(words))*0.2 {
			return true
		}
	}

	if hasRepeatedPhrase(stripped) {
		return true
	}

	compact := strings.Join(strings.Fields(stripped), "")
	if utf8.RuneCountInString(compact) < 4 {
		return true
	}

	if hasCharacterSpam(compact) {
		return true
	}

	return false
}

// IsRepetitiveTranslation flags translation-model degeneracy: a single word
// repeated six or more times, or two words dominating a longer output. This
// is distinct from transcription hallucination and runs post-translation.
func (d *Detector) IsRepetitiveTranslation(text string) bool {
	words := strings.Fields(normalize(text))
	if len(words) == 0 {
		return false
	}

	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[trimWordPunct(w)]++
	}

	var top1, top2 int
	for _, n := range counts {
		if n > top1 {
			top1, top2 = n, top1
		} else if n > top2 {
			top2 = n
		}
	}

	if top1 >= 6 {
		return true
	}

	// Two dominant words only indicate degeneracy on longer output; short
	// callouts like "no, no" are legitimate.
	if len(words) >= 8 && float64(top1+top2) > float64(len(words))*0.6 {
		return true
	}

	return false
}

const punctCutset = ".!?,;:…\"' \t\n"

// normalize lowercases the text and trims surrounding whitespace and
// punctuation so deny-list matching is stable across model quirks.
func normalize(text string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(text)), punctCutset)
}

func trimWordPunct(w string) string {
	return strings.Trim(w, punctCutset)
}

// hasRepeatedPhrase reports whether s consists of one short phrase (2-15
// runes) repeated three or more times, with optional separator punctuation
// between repeats. Catches output like "субтитры субтитры субтитры".
func hasRepeatedPhrase(s string) bool {
	runes := []rune(s)
	for n := 2; n <= 15 && n < len(runes); n++ {
		phrase := string(runes[:n])
		rest := s
		count := 0
		for rest != "" && strings.HasPrefix(rest, phrase) {
			rest = strings.TrimLeft(rest[len(phrase):], " \t,.!?")
			count++
		}
		if rest == "" && count >= 3 {
			return true
		}
	}

	return false
}

// hasCharacterSpam reports whether one character dominates a long string
// (>=75% of all non-space characters) or a long string has pathologically
// low character variety. Catches output like "Бууууууууу...".
func hasCharacterSpam(compact string) bool {
	runes := []rune(compact)
	n := len(runes)
	if n < 12 {
		return false
	}

	counts := make(map[rune]int, n)
	max := 0
	for _, r := range runes {
		counts[r]++
		if counts[r] > max {
			max = counts[r]
		}
	}

	if float64(max) >= float64(n)*0.75 {
		return true
	}

	if n >= 30 && len(counts) <= 5 {
		return true
	}

	return false
}
