package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue(t *testing.T) {
	tests := []struct {
		name          string
		asset, quote  string
		priceKnown    bool
		primaryHeld   bool
		wantImbalance string
		wantComment   string
	}{
		{"balanced", "100", "100", true, true, "0.00", CommentBalanced},
		{"all primary", "100", "0", true, true, "100.00", CommentSkewedPrimary},
		{"all quote", "0", "100", true, false, "100.00", CommentSkewedQuote},
		{"three to one quote", "25", "75", true, true, "50.00", CommentSkewedQuote},
		{"nothing held", "0", "0", true, false, "0.00", ""},
		{"price unknown", "0", "100", false, true, "0.00", CommentNoPrice},
		{"price unknown but nothing held", "0", "100", false, false, "100.00", CommentSkewedQuote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Value(dec(tt.asset), dec(tt.quote), tt.priceKnown, tt.primaryHeld)
			assert.Equal(t, tt.wantImbalance, v.Imbalance.StringFixed(2))
			assert.Equal(t, tt.wantComment, v.Comment)
			assert.True(t, v.TotalUSD.Equal(dec(tt.asset).Add(dec(tt.quote))))
		})
	}
}

func TestImbalance_Rounding(t *testing.T) {
	assert.Equal(t, "33.33", Imbalance(dec("1"), dec("3")).StringFixed(2))
	assert.True(t, Imbalance(dec("5"), dec("0")).IsZero())
	assert.True(t, Imbalance(dec("5"), dec("-1")).IsZero())
}
