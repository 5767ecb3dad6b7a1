package interpreter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCompleteDraft(t *testing.T) {
	draft, ok := NewLabelInterpreter().Extract("Service: Logo Design\nDescription: Brand logo\nPrix: 250.00€")
	require.True(t, ok)
	assert.Equal(t, "Logo Design", draft.Service)
	assert.Equal(t, "Brand logo", draft.Description)
	assert.Equal(t, 250.0, draft.Price)
}

func TestExtractMissingLabel(t *testing.T) {
	draft, ok := NewLabelInterpreter().Extract("Service: Logo Design\nPrix: 250€")
	assert.False(t, ok)
	assert.Nil(t, draft)
}

func TestExtractOneDecimal(t *testing.T) {
	draft, ok := NewLabelInterpreter().Extract("Service: Audit\nDescription: Quick review\nPrix: 99.9€")
	require.True(t, ok)
	assert.Equal(t, 99.9, draft.Price)
}

func TestExtractVariants(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		price float64
		ok    bool
	}{
		{"case insensitive labels", "service : Site web\nDESCRIPTION: Vitrine\nprix : 1200 €", 1200, true},
		{"comma decimal", "Service: Audit\nDescription: Code\nPrix: 12,50€", 12.5, true},
		{"english label and currency", "Service: Audit\nDescription: Code\nPrice: 80 EUR", 80, true},
		{"surrounding prose", "Voici le résumé.\nService: Audit\nDescription: Revue\nPrix: 300€\nMerci !", 300, true},
		{"three decimals rejected", "Service: Audit\nDescription: Code\nPrix: 12.505€", 0, false},
		{"missing currency", "Service: Audit\nDescription: Code\nPrix: 12", 0, false},
		{"empty text", "", 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			draft, ok := NewLabelInterpreter().Extract(tc.text)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				require.NotNil(t, draft)
				assert.Equal(t, tc.price, draft.Price)
			}
		})
	}
}

func TestExtractTrimsCaptures(t *testing.T) {
	draft, ok := NewLabelInterpreter().Extract("Service:   Logo Design   \r\nDescription:\tBrand logo \r\nPrix: 250€")
	require.True(t, ok)
	assert.Equal(t, "Logo Design", draft.Service)
	assert.Equal(t, "Brand logo", draft.Description)
}
