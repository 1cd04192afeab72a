package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/recon-engine/pkg/apperrors"
)

func newTestResolver() *TableNameResolver {
	return NewTableNameResolver(
		[]string{"brz_lnd_RBP_GPU", "brz_lnd_OPS_EXCEL_GPU", "hana_material_master", "s_customer", "s_customer_address", "order_lines"},
		map[string]string{"Billing": "s_customer", "Planning Sheet": "BRZ_LND_OPS_EXCEL_GPU"},
	)
}

func TestTableNameResolver_Resolve(t *testing.T) {
	tests := []struct {
		phrase string
		want   string
	}{
		{"brz_lnd_RBP_GPU", "brz_lnd_RBP_GPU"},
		{"BRZ_LND_RBP_GPU", "brz_lnd_RBP_GPU"},
		{"the hana_material_master table", "hana_material_master"},
		{"billing", "s_customer"},
		{"Planning Sheet", "brz_lnd_OPS_EXCEL_GPU"},
		{"RBP GPU", "brz_lnd_RBP_GPU"},
		{"RBP", "brz_lnd_RBP_GPU"},
		{"OPS Excel", "brz_lnd_OPS_EXCEL_GPU"},
		{"\"OPS Excel\"", "brz_lnd_OPS_EXCEL_GPU"},
		{"HANA Master", "hana_material_master"},
		{"hana material masters", "hana_material_master"},
		{"customer addresses", "s_customer_address"},
		{"order line", "order_lines"},
	}

	r := newTestResolver()
	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			got, err := r.Resolve(tt.phrase)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTableNameResolver_Ambiguous(t *testing.T) {
	r := newTestResolver()

	_, err := r.Resolve("GPU")
	var ambiguous *apperrors.AmbiguousReferenceError
	require.True(t, errors.As(err, &ambiguous))
	assert.Equal(t, "GPU", ambiguous.Phrase)
	assert.Equal(t, []string{"brz_lnd_OPS_EXCEL_GPU", "brz_lnd_RBP_GPU"}, ambiguous.Candidates)

	// "customer" is a whole table name token run in two tables.
	_, err = r.Resolve("customer")
	require.True(t, errors.As(err, &ambiguous))
	assert.Len(t, ambiguous.Candidates, 2)
}

func TestTableNameResolver_NotFound(t *testing.T) {
	r := newTestResolver()

	for _, phrase := range []string{"inventory", "", "   ", "the table"} {
		_, err := r.Resolve(phrase)
		var ambiguous *apperrors.AmbiguousReferenceError
		require.True(t, errors.As(err, &ambiguous), phrase)
		assert.Empty(t, ambiguous.Candidates)
		assert.True(t, apperrors.IsParseError(err))
	}
}

func TestTableNameResolver_PartialTokenIsNotAMatch(t *testing.T) {
	r := NewTableNameResolver([]string{"sales_orders"}, nil)
	_, err := r.Resolve("sale ord")
	assert.Error(t, err, "substring of a token must not match")
}

func TestCleanTablePhrase(t *testing.T) {
	assert.Equal(t, "OPS Excel", CleanTablePhrase("  the OPS Excel table. "))
	assert.Equal(t, "RBP GPU", CleanTablePhrase("`RBP GPU`"))
	assert.Equal(t, "Customers", CleanTablePhrase("the Customers dataset"))
}
