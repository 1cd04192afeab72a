package services

import (
	"regexp"

	"github.com/ekaya-inc/recon-engine/pkg/models"
)

var (
	notInMarkers = regexp.MustCompile(`(?i)\b(?:` +
		`not\s+in|missing\s+from|absent\s+from|not\s+present\s+in|not\s+found\s+in|` +
		`(?:do|does|are|is)\s+not\s+(?:exist|appear)\s+in|(?:don't|doesn't|aren't|isn't)\s+(?:exist\s+in|appear\s+in|in)|` +
		`without\s+(?:a\s+)?match(?:es|ing)?\s+in|not\s+matched\s+in)\b`)

	inMarkers = regexp.MustCompile(`(?i)\b(?:` +
		`in\s+both|present\s+in\s+both|exist\s+in\s+both|common\s+to|` +
		`matching|that\s+match|which\s+match|with\s+(?:a\s+)?match(?:es)?\s+in)\b`)

	aggregationMarkers = regexp.MustCompile(`(?i)\b(?:` +
		`count|how\s+many|number\s+of|sum|total|average|avg|group(?:ed)?\s+by|breakdown)\b`)

	filterMarkers = regexp.MustCompile(`(?i)\b(?:` +
		`where|whose|having|with|that\s+are|which\s+are|that\s+is|which\s+is|` +
		`active|inactive|open|closed|pending|` +
		`is\s+(?:null|missing|empty|blank))\b`)
)

// QueryClassifier assigns a query shape to a natural-language sentence.
type QueryClassifier struct{}

// NewQueryClassifier creates a QueryClassifier.
func NewQueryClassifier() *QueryClassifier {
	return &QueryClassifier{}
}

// Classify returns the query type and, for comparison queries, the
// operation. Markers are checked in precedence order: comparison, then
// aggregation, then filter. Anything else is a plain data query.
func (c *QueryClassifier) Classify(text string) (models.QueryType, models.Operation) {
	switch {
	case notInMarkers.MatchString(text):
		return models.QueryTypeComparison, models.OperationNotIn
	case inMarkers.MatchString(text):
		return models.QueryTypeComparison, models.OperationIn
	case aggregationMarkers.MatchString(text):
		return models.QueryTypeAggregation, models.OperationNone
	case filterMarkers.MatchString(text):
		return models.QueryTypeFilter, models.OperationNone
	default:
		return models.QueryTypeData, models.OperationNone
	}
}
