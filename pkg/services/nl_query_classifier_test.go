package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/recon-engine/pkg/models"
)

func TestQueryClassifier_Classify(t *testing.T) {
	tests := []struct {
		text     string
		wantType models.QueryType
		wantOp   models.Operation
	}{
		{"Show products in RBP GPU not in OPS Excel", models.QueryTypeComparison, models.OperationNotIn},
		{"Show products in RBP GPU not in OPS Excel, include planner from HANA Master", models.QueryTypeComparison, models.OperationNotIn},
		{"materials in RBP but not in OPS", models.QueryTypeComparison, models.OperationNotIn},
		{"which SKUs are missing from OPS Excel", models.QueryTypeComparison, models.OperationNotIn},
		{"customers in CRM that do not exist in Billing", models.QueryTypeComparison, models.OperationNotIn},
		{"orders in A that don't appear in B", models.QueryTypeComparison, models.OperationNotIn},
		{"products in both RBP and OPS", models.QueryTypeComparison, models.OperationIn},
		{"RBP rows matching OPS Excel", models.QueryTypeComparison, models.OperationIn},
		{"count products in RBP not in OPS", models.QueryTypeComparison, models.OperationNotIn},
		{"count of products in RBP by status", models.QueryTypeAggregation, models.OperationNone},
		{"How many orders per region in Sales", models.QueryTypeAggregation, models.OperationNone},
		{"average price grouped by category", models.QueryTypeAggregation, models.OperationNone},
		{"total active orders", models.QueryTypeAggregation, models.OperationNone},
		{"products in RBP where status is closed", models.QueryTypeFilter, models.OperationNone},
		{"active products in RBP that are also in OPS", models.QueryTypeFilter, models.OperationNone},
		{"customers whose region is EMEA", models.QueryTypeFilter, models.OperationNone},
		{"materials in RBP with planner missing", models.QueryTypeFilter, models.OperationNone},
		{"Show all records from RBP GPU", models.QueryTypeData, models.OperationNone},
		{"list hana material master", models.QueryTypeData, models.OperationNone},
		{"", models.QueryTypeData, models.OperationNone},
	}

	c := NewQueryClassifier()
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			gotType, gotOp := c.Classify(tt.text)
			assert.Equal(t, tt.wantType, gotType)
			assert.Equal(t, tt.wantOp, gotOp)
		})
	}
}

func TestQueryClassifier_OperationOnlyForComparisons(t *testing.T) {
	c := NewQueryClassifier()
	for _, text := range []string{"count rows in RBP", "RBP where status is open", "show RBP"} {
		qt, op := c.Classify(text)
		assert.NotEqual(t, models.QueryTypeComparison, qt)
		assert.Equal(t, models.OperationNone, op, text)
	}
}
