package services

import (
	"regexp"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/recon-engine/pkg/apperrors"
)

var (
	tokenSeparators   = regexp.MustCompile(`[\s_\-.]+`)
	phraseQuoteChars  = strings.NewReplacer(`"`, "", "`", "", "'", "", "[", "", "]", "")
	leadingArticle    = regexp.MustCompile(`(?i)^(?:the|a|an)\s+`)
	trailingTableWord = regexp.MustCompile(`(?i)\s+(?:table|dataset|data\s+set)$`)
)

// TableNameResolver maps a user-facing table phrase such as "RBP GPU" to a
// schema table name such as "brz_lnd_RBP_GPU".
type TableNameResolver struct {
	tables  map[string]string // lower(name) -> name
	aliases map[string]string // lower(alias) -> table name
	entries []resolverEntry
}

type resolverEntry struct {
	table  string
	tokens []string
}

// NewTableNameResolver creates a resolver over the known table names and the
// business alias -> table map.
func NewTableNameResolver(tables []string, aliases map[string]string) *TableNameResolver {
	r := &TableNameResolver{
		tables:  make(map[string]string, len(tables)),
		aliases: make(map[string]string, len(aliases)),
	}
	for _, t := range tables {
		r.tables[normalizeKey(t)] = t
		r.entries = append(r.entries, resolverEntry{table: t, tokens: tokenize(t)})
	}

	aliasNames := make([]string, 0, len(aliases))
	for alias := range aliases {
		aliasNames = append(aliasNames, alias)
	}
	sort.Strings(aliasNames)
	for _, alias := range aliasNames {
		table := aliases[alias]
		if canonical, ok := r.tables[normalizeKey(table)]; ok {
			table = canonical
		}
		r.aliases[normalizeKey(alias)] = table
		r.entries = append(r.entries, resolverEntry{table: table, tokens: tokenize(alias)})
	}
	return r
}

// Resolve returns the table a phrase refers to. Matching runs in tiers:
// exact table name, exact alias, the phrase's tokens as a contiguous run of
// a name's tokens, then as an ordered subsequence. The first tier with any
// candidate decides; it must have exactly one, otherwise an
// *apperrors.AmbiguousReferenceError lists what matched.
func (r *TableNameResolver) Resolve(phrase string) (string, error) {
	cleaned := CleanTablePhrase(phrase)
	if cleaned == "" {
		return "", &apperrors.AmbiguousReferenceError{Phrase: phrase}
	}
	key := normalizeKey(cleaned)

	if table, ok := r.tables[key]; ok {
		return table, nil
	}
	if table, ok := r.aliases[key]; ok {
		return table, nil
	}

	tokens := tokenize(cleaned)
	for _, match := range []func(name, phrase []string) bool{containsRun, containsSubsequence} {
		candidates := r.candidates(tokens, match)
		switch len(candidates) {
		case 0:
			continue
		case 1:
			return candidates[0], nil
		default:
			return "", &apperrors.AmbiguousReferenceError{Phrase: phrase, Candidates: candidates}
		}
	}

	return "", &apperrors.AmbiguousReferenceError{Phrase: phrase}
}

func (r *TableNameResolver) candidates(tokens []string, match func(name, phrase []string) bool) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range r.entries {
		if seen[e.table] || !match(e.tokens, tokens) {
			continue
		}
		seen[e.table] = true
		out = append(out, e.table)
	}
	sort.Strings(out)
	return out
}

// CleanTablePhrase strips quoting, a leading article and a trailing "table"
// from a phrase.
func CleanTablePhrase(phrase string) string {
	s := strings.TrimSpace(phraseQuoteChars.Replace(phrase))
	s = strings.TrimRight(s, ".,;:!?")
	s = leadingArticle.ReplaceAllString(s, "")
	s = trailingTableWord.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// tokenize splits a name on whitespace, underscores, hyphens and dots and
// singularizes each lower-cased token.
func tokenize(s string) []string {
	var out []string
	for _, part := range tokenSeparators.Split(strings.ToLower(s), -1) {
		if part == "" {
			continue
		}
		out = append(out, inflection.Singular(part))
	}
	return out
}

func containsRun(name, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(name) {
		return false
	}
	for i := 0; i+len(phrase) <= len(name); i++ {
		match := true
		for j := range phrase {
			if name[i+j] != phrase[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func containsSubsequence(name, phrase []string) bool {
	if len(phrase) == 0 {
		return false
	}
	j := 0
	for _, tok := range name {
		if j < len(phrase) && tok == phrase[j] {
			j++
		}
	}
	return j == len(phrase)
}
