package services

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/ekaya-inc/recon-engine/pkg/jsonutil"
	"github.com/ekaya-inc/recon-engine/pkg/models"
)

// Phrase boundaries: a table phrase ends where a clause keyword begins.
const clauseStop = `(?:\s+(?:where|whose|having|with|that|which|by|per|grouped|group|and|but|also|not)\b.*)?$`

var (
	notInPhrasePattern = regexp.MustCompile(`(?i)\b(?:in|from)\s+(.+?)\s+(?:but\s+)?(?:` +
		`(?:(?:that|which)\s+)?(?:(?:are|is)\s+)?(?:not\s+in|missing\s+from|absent\s+from|not\s+present\s+in|not\s+found\s+in|not\s+matched\s+in)|` +
		`(?:(?:that|which)\s+)?(?:do|does|are|is)\s+not\s+(?:exist|appear)\s+in|` +
		`(?:(?:that|which)\s+)?(?:don't|doesn't|aren't|isn't)\s+(?:exist\s+in|appear\s+in|in)|` +
		`without\s+(?:a\s+)?match(?:es|ing)?\s+in)\s+(.+?)` + clauseStop)

	notInReversedPattern = regexp.MustCompile(`(?i)\b(?:not\s+in|missing\s+from|absent\s+from|not\s+present\s+in|not\s+found\s+in)\s+(.+?)\s+` +
		`(?:but\s+)?(?:(?:that|which)\s+(?:are|is)\s+)?(?:in|from)\s+(.+?)` + clauseStop)

	notInSubjectPattern = regexp.MustCompile(`(?i)^(?:show|list|find|get|display|give\s+me|which|what)?\s*(?:me\s+)?(?:all\s+)?(?:the\s+)?(.+?)\s+(?:(?:that|which)\s+)?(?:(?:are|is)\s+)?` +
		`(?:not\s+in|missing\s+from|absent\s+from|not\s+present\s+in|not\s+found\s+in)\s+(.+?)` + clauseStop)

	inBothPattern = regexp.MustCompile(`(?i)\b(?:in|common\s+to)\s+both\s+(.+?)\s+and\s+(.+?)` + clauseStop)

	inMatchPattern = regexp.MustCompile(`(?i)\b(?:in|from)\s+(.+?)\s+(?:(?:that|which)\s+(?:are|is)\s+)?(?:` +
		`matching|that\s+match|which\s+match|with\s+(?:a\s+)?match(?:es)?\s+in|(?:also\s+)?(?:present|existing)\s+in)\s+` +
		`(?:(?:records|rows|entries)\s+in\s+)?(.+?)` + clauseStop)

	inSubjectPattern = regexp.MustCompile(`(?i)^(?:show|list|find|get|display|give\s+me)?\s*(?:me\s+)?(?:all\s+)?(?:the\s+)?(.+?)\s+(?:(?:rows|records|entries)\s+)?` +
		`(?:matching|that\s+match|which\s+match)\s+(.+?)` + clauseStop)

	implicitTargetPattern = regexp.MustCompile(`(?i)\b(?:(?:that|which)\s+(?:are|is)\s+)?also\s+(?:in|present\s+in|found\s+in)\s+(.+?)` +
		`(?:\s+(?:where|whose|having|with|by|per|grouped|group)\b.*)?$`)

	inFromMarker   = regexp.MustCompile(`(?i)\b(?:in|from)\s+`)
	ofMarker       = regexp.MustCompile(`(?i)\bof\s+`)
	phraseStop     = regexp.MustCompile(`(?i)\s+(?:where|whose|having|with|that|which|by|per|grouped|group|and|but|also|not|in|from)\b`)
	subjectVerb    = regexp.MustCompile(`(?i)^(?:show|list|get|display|find|select|fetch|give\s+me|count|how\s+many|number\s+of)\s+(?:me\s+)?(?:all\s+)?(?:the\s+)?(?:(?:records|rows|entries)\s+)?(?:(?:of|in|from)\s+)?`)
	subjectHeadCut = regexp.MustCompile(`(?i)\s+(?:where|whose|having|with|by|per|grouped|group|that|which|also)\b`)

	genericNouns = map[string]bool{
		"records": true, "record": true, "rows": true, "row": true, "entries": true, "entry": true,
		"items": true, "item": true, "products": true, "product": true, "data": true, "all": true,
	}

	includePattern  = regexp.MustCompile(`(?i)(?:\s*[,;]\s*|\s+)(?:and\s+)?(?:include|including|also\s+show(?:ing)?|also\s+include|along\s+with|together\s+with)\s+(.+)$`)
	plusPattern     = regexp.MustCompile(`(?i)(\s*[,;]\s*|\s+)(?:and\s+)?plus\s+(.+)$`)
	withFromPattern = regexp.MustCompile(`(?i)\s+with\s+(.+\s+from\s+.+)$`)
	itemSplitter    = regexp.MustCompile(`(?i)\s*(?:,|;|\s+and\s+)\s*`)
	includeFrom     = regexp.MustCompile(`(?i)^(.+)\s+from\s+(.+)$`)
	includeItem     = regexp.MustCompile(`(?i)^(.+?)\s+(?:in|of|on)\s+(.+)$`)
	columnSuffix    = regexp.MustCompile(`(?i)\s+(?:column|columns|field|fields)$`)

	filterClausePattern = regexp.MustCompile(`(?i)\b(?:where|whose|having|with)\s+(.+)$`)
	filterClauseEnd     = regexp.MustCompile(`(?i)\s+(?:(?:that|which)\s+(?:are|is)\s+also|also\s+in|grouped\s+by|group\s+by|by|per)\b`)
	conditionSplitter   = regexp.MustCompile(`(?i)\s*(?:,|\s+and\s+)\s*`)

	statusAdjective = regexp.MustCompile(`(?i)\b(active|inactive|open|closed|pending)\b`)
	statusScope     = regexp.MustCompile(`(?i)^\s+(?:in|from)\s+(.+?)` + clauseStop)

	groupByPattern = regexp.MustCompile(`(?i)\b(?:grouped\s+by|group\s+by|by|per|for\s+each)\s+(?:the\s+)?(.+?)` +
		`(?:\s+(?:where|whose|having|with|in|from|and)\b.*)?$`)

	aliasCleaner = regexp.MustCompile(`[^a-z0-9]+`)
)

type conditionPattern struct {
	re *regexp.Regexp
	op models.FilterOperator
}

// Ordered: more specific phrasings come before the ones they contain.
var conditionPatterns = []conditionPattern{
	{regexp.MustCompile(`(?i)^(.+?)\s+(?:is|are)\s+not\s+(?:null|missing|empty|blank)$`), models.FilterOpIsNotNull},
	{regexp.MustCompile(`(?i)^(.+?)\s+(?:is|are)\s+(?:present|set|populated|filled\s+in)$`), models.FilterOpIsNotNull},
	{regexp.MustCompile(`(?i)^(.+?)\s+(?:(?:is|are)\s+)?(?:null|missing|empty|blank|not\s+set)$`), models.FilterOpIsNull},
	{regexp.MustCompile(`(?i)^(.+?)\s+(?:contains|containing|is\s+like|like)\s+(.+)$`), models.FilterOpContains},
	{regexp.MustCompile(`(?i)^(.+?)\s*>=\s*(.+)$`), models.FilterOpGte},
	{regexp.MustCompile(`(?i)^(.+?)\s*<=\s*(.+)$`), models.FilterOpLte},
	{regexp.MustCompile(`(?i)^(.+?)\s*(?:!=|<>)\s*(.+)$`), models.FilterOpNe},
	{regexp.MustCompile(`(?i)^(.+?)\s*>\s*(.+)$`), models.FilterOpGt},
	{regexp.MustCompile(`(?i)^(.+?)\s*<\s*(.+)$`), models.FilterOpLt},
	{regexp.MustCompile(`(?i)^(.+?)\s+(?:is\s+)?(?:at\s+least|greater\s+than\s+or\s+equal\s+to)\s+(.+)$`), models.FilterOpGte},
	{regexp.MustCompile(`(?i)^(.+?)\s+(?:is\s+)?(?:at\s+most|less\s+than\s+or\s+equal\s+to)\s+(.+)$`), models.FilterOpLte},
	{regexp.MustCompile(`(?i)^(.+?)\s+(?:is\s+)?(?:greater\s+than|more\s+than|above|over|exceeds)\s+(.+)$`), models.FilterOpGt},
	{regexp.MustCompile(`(?i)^(.+?)\s+(?:is\s+)?(?:less\s+than|fewer\s+than|below|under)\s+(.+)$`), models.FilterOpLt},
	{regexp.MustCompile(`(?i)^(.+?)\s+(?:is\s+not|isn't|are\s+not|aren't|not\s+equal\s+to|does\s+not\s+equal|doesn't\s+equal)\s+(.+)$`), models.FilterOpNe},
	{regexp.MustCompile(`(?i)^(.+?)\s*(?:==|=)\s*(.+)$`), models.FilterOpEq},
	{regexp.MustCompile(`(?i)^(.+?)\s+(?:equals|is\s+equal\s+to|is|are|of)\s+(.+)$`), models.FilterOpEq},
}

// tablePhrases holds the raw table phrases found in a question.
type tablePhrases struct {
	source     string
	target     string
	candidates []string // alternative source phrases, tried in order
}

// phrasePattern captures two table phrases. targetFirst marks patterns that
// name the missing side before the source ("missing from T that are in S").
type phrasePattern struct {
	re          *regexp.Regexp
	targetFirst bool
}

var (
	notInPatterns = []phrasePattern{{re: notInPhrasePattern}, {re: notInReversedPattern, targetFirst: true}, {re: notInSubjectPattern}}
	inPatterns    = []phrasePattern{{re: inBothPattern}, {re: inMatchPattern}, {re: inSubjectPattern}}
)

// splitIncludeClause separates a trailing "include X from Y" clause from the
// main question. A bare "plus" opens the clause only after a comma or when the
// clause names its table with "from". "with X from Y" counts only when the
// main question already names a table with "in" or "from".
func splitIncludeClause(text string) (main, include string) {
	cut, start := -1, -1
	if loc := includePattern.FindStringSubmatchIndex(text); loc != nil {
		cut, start = loc[0], loc[2]
	}
	if loc := plusPattern.FindStringSubmatchIndex(text); loc != nil && (cut < 0 || loc[0] < cut) {
		afterComma := strings.TrimSpace(text[loc[2]:loc[3]]) != ""
		if afterComma || includeFrom.MatchString(text[loc[4]:loc[5]]) {
			cut, start = loc[0], loc[4]
		}
	}
	if loc := withFromPattern.FindStringSubmatchIndex(text); loc != nil && (cut < 0 || loc[0] < cut) &&
		inFromMarker.MatchString(text[:loc[0]]) {
		cut, start = loc[0], loc[2]
	}
	if cut < 0 {
		return strings.TrimSpace(text), ""
	}
	return strings.TrimSpace(text[:cut]), strings.TrimSpace(text[start:])
}

// extractTablePhrases finds the table phrases of a question by pattern.
func extractTablePhrases(text string, qt models.QueryType, op models.Operation) tablePhrases {
	if qt == models.QueryTypeComparison {
		patterns := notInPatterns
		if op == models.OperationIn {
			patterns = inPatterns
		}
		for _, p := range patterns {
			m := p.re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			if p.targetFirst {
				if phraseStop.MatchString(m[1]) {
					continue
				}
				return tablePhrases{source: trimPhrase(m[2]), target: trimPhrase(m[1])}
			}
			return tablePhrases{source: trimPhrase(m[1]), target: trimPhrase(m[2])}
		}
		return tablePhrases{candidates: singleTableCandidates(text)}
	}

	phrases := tablePhrases{candidates: singleTableCandidates(text)}
	if len(phrases.candidates) > 0 {
		phrases.source = phrases.candidates[0]
	}
	if qt == models.QueryTypeFilter {
		if m := implicitTargetPattern.FindStringSubmatch(text); m != nil {
			phrases.target = trimPhrase(m[1])
			phrases.candidates = removePhrase(phrases.candidates, phrases.target)
			if len(phrases.candidates) > 0 {
				phrases.source = phrases.candidates[0]
			} else {
				phrases.source = ""
			}
		}
	}
	return phrases
}

// singleTableCandidates returns every phrase following "in"/"from", then
// "of", then the sentence subject, in that order.
func singleTableCandidates(text string) []string {
	var out []string
	for _, marker := range []*regexp.Regexp{inFromMarker, ofMarker} {
		for _, loc := range marker.FindAllStringIndex(text, -1) {
			rest := text[loc[1]:]
			if stop := phraseStop.FindStringIndex(rest); stop != nil {
				rest = rest[:stop[0]]
			}
			if p := trimPhrase(rest); p != "" {
				out = appendUnique(out, p)
			}
		}
	}

	subject := text
	if cut := subjectHeadCut.FindStringIndex(subject); cut != nil {
		subject = subject[:cut[0]]
	}
	if loc := subjectVerb.FindStringIndex(subject); loc != nil {
		subject = subject[loc[1]:]
		if stop := phraseStop.FindStringIndex(subject); stop != nil {
			subject = subject[:stop[0]]
		}
		if p := trimPhrase(subject); p != "" {
			out = appendUnique(out, p)
		}
	}
	return out
}

func trimPhrase(s string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), ".,;:!?"))
}

// stripGenericNouns drops words like "records" or "products" from both ends
// of a phrase. It returns "" when nothing else remains.
func stripGenericNouns(phrase string) string {
	words := strings.Fields(phrase)
	for len(words) > 0 && genericNouns[strings.ToLower(words[0])] {
		words = words[1:]
	}
	for len(words) > 0 && genericNouns[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return list
		}
	}
	return append(list, s)
}

func removePhrase(list []string, s string) []string {
	out := list[:0:0]
	for _, v := range list {
		if !strings.EqualFold(v, s) {
			out = append(out, v)
		}
	}
	return out
}

// ============================================================================
// Filters
// ============================================================================

// rawCondition is one filter condition before column resolution.
type rawCondition struct {
	column string
	op     models.FilterOperator
	value  string
	bare   bool // "<column> <value>" with no operator word
}

// extractFilterClause returns the text of the WHERE-like clause, if any.
func extractFilterClause(text string) string {
	m := filterClausePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	clause := m[1]
	if end := filterClauseEnd.FindStringIndex(clause); end != nil {
		clause = clause[:end[0]]
	}
	return strings.TrimSpace(clause)
}

// parseConditions splits a filter clause into conditions.
func parseConditions(clause string) []rawCondition {
	var out []rawCondition
	for _, part := range conditionSplitter.Split(clause, -1) {
		part = trimPhrase(part)
		if part == "" {
			continue
		}
		out = append(out, parseCondition(part))
	}
	return out
}

func parseCondition(part string) rawCondition {
	for _, p := range conditionPatterns {
		m := p.re.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		c := rawCondition{column: cleanColumnPhrase(m[1]), op: p.op}
		if len(m) > 2 {
			c.value = strings.TrimSpace(m[2])
		}
		return c
	}
	return rawCondition{value: part, bare: true}
}

func cleanColumnPhrase(s string) string {
	s = strings.TrimSpace(phraseQuoteChars.Replace(s))
	s = leadingArticle.ReplaceAllString(s, "")
	s = columnSuffix.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// parseLiteral turns a filter value into a typed literal. Quoted values stay
// strings; bare numbers become int64 or float64; true/false become bool.
func parseLiteral(raw string) any {
	s := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(raw), ".,;!?"))
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' || first == '"') && first == last {
			return s[1 : len(s)-1]
		}
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// statusMention is a status word used as an adjective.
type statusMention struct {
	word   string
	offset int
	scope  string // table phrase of a directly following "in <table>"
}

// statusMentions finds status adjectives in masked, a copy of text with the
// table phrases and filter clause blanked out. Scopes are read from text.
func statusMentions(text, masked string) []statusMention {
	var out []statusMention
	seen := make(map[string]bool)
	for _, loc := range statusAdjective.FindAllStringSubmatchIndex(masked, -1) {
		word := strings.ToLower(masked[loc[2]:loc[3]])
		if seen[word] {
			continue
		}
		seen[word] = true
		m := statusMention{word: word, offset: loc[0]}
		if sc := statusScope.FindStringSubmatch(text[loc[1]:]); sc != nil {
			m.scope = trimPhrase(sc[1])
		}
		out = append(out, m)
	}
	return out
}

// maskFirst blanks the first occurrence of sub in s, keeping byte offsets.
func maskFirst(s, sub string) string {
	if sub == "" {
		return s
	}
	i := strings.Index(s, sub)
	if i < 0 {
		return s
	}
	return s[:i] + strings.Repeat(" ", len(sub)) + s[i+len(sub):]
}

// statusColumn returns a table's status column: "status" itself, otherwise
// the first column named "*_status".
func statusColumn(index *RelationshipIndex, table string) (string, bool) {
	var suffixed string
	for _, col := range index.Columns(table) {
		lower := strings.ToLower(col)
		if lower == "status" {
			return col, true
		}
		if suffixed == "" && strings.HasSuffix(lower, "_status") {
			suffixed = col
		}
	}
	return suffixed, suffixed != ""
}

// extractGroupByPhrase returns the phrase after "by", "per" or "grouped by".
func extractGroupByPhrase(text string) string {
	m := groupByPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return cleanColumnPhrase(trimPhrase(m[1]))
}

// matchColumn resolves a column phrase against a table: exact name, then
// spaces as underscores, then equal tokens, then a unique token run.
func matchColumn(index *RelationshipIndex, table, phrase string) (string, bool) {
	phrase = cleanColumnPhrase(phrase)
	if phrase == "" {
		return "", false
	}
	if col, ok := index.ResolveColumn(table, phrase); ok {
		return col, true
	}
	if col, ok := index.ResolveColumn(table, strings.Join(strings.Fields(phrase), "_")); ok {
		return col, true
	}

	tokens := tokenize(phrase)
	columns := index.Columns(table)
	for _, match := range []func(name, phrase []string) bool{equalTokens, containsRun} {
		var found []string
		for _, col := range columns {
			if match(tokenize(col), tokens) {
				found = append(found, col)
			}
		}
		if len(found) == 1 {
			return found[0], true
		}
		if len(found) > 1 {
			return "", false
		}
	}
	return "", false
}

func equalTokens(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ============================================================================
// Include clauses
// ============================================================================

// includeRequest is one "include <column> from <table>" item.
type includeRequest struct {
	column      string
	tablePhrase string // empty means the query's source table
}

// parseIncludeItems splits an include clause into items. An item without a
// table takes the table of the next item that names one, so "planner and
// buyer from HANA" pulls both columns from HANA.
func parseIncludeItems(clause string) []includeRequest {
	if clause == "" {
		return nil
	}
	var items []includeRequest
	for _, part := range itemSplitter.Split(clause, -1) {
		part = trimPhrase(part)
		if part == "" {
			continue
		}
		m := includeFrom.FindStringSubmatch(part)
		if m == nil {
			m = includeItem.FindStringSubmatch(part)
		}
		if m != nil {
			items = append(items, includeRequest{column: cleanColumnPhrase(m[1]), tablePhrase: trimPhrase(m[2])})
			continue
		}
		items = append(items, includeRequest{column: cleanColumnPhrase(part)})
	}

	carry := ""
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].tablePhrase != "" {
			carry = items[i].tablePhrase
			continue
		}
		items[i].tablePhrase = carry
	}
	return items
}

// additionalColumnAlias builds the result alias for an included column:
// "{table phrase}_{column}", lower-cased, with non-alphanumerics as "_".
func additionalColumnAlias(tablePhrase, column string) string {
	return normalizeIdentifier(CleanTablePhrase(tablePhrase) + "_" + column)
}

func normalizeIdentifier(s string) string {
	return strings.Trim(aliasCleaner.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

// ============================================================================
// LLM response shapes
// ============================================================================

type llmTableResponse struct {
	SourceTable json.RawMessage `json:"source_table"`
	TargetTable json.RawMessage `json:"target_table"`
	Confidence  json.RawMessage `json:"confidence"`
}

type llmIncludeResponse struct {
	Includes []struct {
		Column json.RawMessage `json:"column"`
		Table  json.RawMessage `json:"table"`
	} `json:"includes"`
}

func (r llmTableResponse) tables() (source, target string) {
	return strings.TrimSpace(jsonutil.FlexibleStringValue(r.SourceTable)),
		strings.TrimSpace(jsonutil.FlexibleStringValue(r.TargetTable))
}

func (r llmTableResponse) confidence() float64 {
	c, err := jsonutil.FlexibleFloatValue(r.Confidence)
	if err != nil || c < 0 || c > 1 {
		return 0
	}
	return c
}

func (r llmIncludeResponse) requests() []includeRequest {
	var out []includeRequest
	for _, inc := range r.Includes {
		column := cleanColumnPhrase(jsonutil.FlexibleStringValue(inc.Column))
		if column == "" {
			continue
		}
		out = append(out, includeRequest{
			column:      column,
			tablePhrase: strings.TrimSpace(jsonutil.FlexibleStringValue(inc.Table)),
		})
	}
	return out
}
