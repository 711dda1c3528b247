package answer

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"ragsearch/internal/domain"
)

// NoContextAnswer is returned by the extractive generator when retrieval
// produced nothing to summarise.
const NoContextAnswer = "I couldn't find any relevant information in the knowledge base for this question."

var (
	tokenPattern    = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// Extractive answers by picking the sentences of the retrieved sources that
// best match the question, ranked by word frequency with stopwords removed.
// It needs no network and never fails.
type Extractive struct {
	maxSentences int
	stopwords    map[string]struct{}
}

func NewExtractive(maxSentences int) *Extractive {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	return &Extractive{maxSentences: maxSentences, stopwords: defaultStopwords()}
}

func (e *Extractive) Name() string { return "extractive" }

func (e *Extractive) Complete(ctx context.Context, p domain.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(p.Sources) == 0 {
		return NoContextAnswer, nil
	}
	parts := make([]string, len(p.Sources))
	for i, s := range p.Sources {
		parts[i] = s.Content
	}
	return e.Summarize(strings.Join(parts, "\n"), lastUserContent(p.Messages)), nil
}

// Summarize returns up to maxSentences sentences of text in their original
// order. Words that also occur in query weigh double.
func (e *Extractive) Summarize(text, query string) string {
	sentences := sentencePattern.FindAllString(text, -1)
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}
	boost := map[string]struct{}{}
	for _, tok := range e.tokens(query) {
		if _, stop := e.stopwords[tok]; !stop {
			boost[tok] = struct{}{}
		}
	}

	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range e.tokens(sent) {
			if _, ok := e.stopwords[tok]; ok {
				continue
			}
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		if v > maxF {
			maxF = v
		}
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
			if _, ok := boost[k]; ok {
				freq[k] *= 2
			}
		}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		toks := e.tokens(sent)
		sscore := 0.0
		for _, tok := range toks {
			sscore += freq[tok]
		}
		// normalise by length so long sentences don't always win
		if l := float64(len(toks)); l > 0 {
			sscore /= math.Sqrt(l)
		}
		scores[i] = pair{i, sscore}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := min(e.maxSentences, len(scores))
	selected := make([]int, n)
	for i := 0; i < n; i++ {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, n)
	for _, idx := range selected {
		out = append(out, strings.TrimSpace(sentences[idx]))
	}
	return strings.Join(out, " ")
}

func (e *Extractive) tokens(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func lastUserContent(msgs []domain.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "how", "why", "when", "where", "do", "does", "did", "i", "you", "me", "my",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
