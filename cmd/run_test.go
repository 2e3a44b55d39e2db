package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/deal-sourcing/internal/model"
)

func setRunFlags(t *testing.T, query, strategy string, maxResults, minScore int) {
	t.Helper()
	prevQuery, prevStrategy, prevMax, prevMin := runQuery, runStrategy, runMaxResults, runMinScore
	t.Cleanup(func() {
		runQuery, runStrategy, runMaxResults, runMinScore = prevQuery, prevStrategy, prevMax, prevMin
	})
	runQuery, runStrategy, runMaxResults, runMinScore = query, strategy, maxResults, minScore
}

func TestRunRequestFromFlags(t *testing.T) {
	setRunFlags(t, "specialty chemicals", "sell-side", 20, 7)

	req, err := runRequestFromFlags()
	require.NoError(t, err)
	assert.Equal(t, "specialty chemicals", req.Criteria.Query)
	assert.Equal(t, model.StrategySellSide, req.Criteria.Strategy)
	assert.Equal(t, 20, req.Criteria.MaxResults)
	assert.Equal(t, 7, req.Rules.MinScore)
	assert.Equal(t, model.TriggerManual, req.Trigger)
}

func TestRunRequestFromFlags_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		max      int
		min      int
		want     string
	}{
		{"bad strategy", "hostile", 0, 0, "Strategy must be one of"},
		{"too many results", "buy-side", 500, 0, "MaxResults must be <= 100"},
		{"score out of range", "buy-side", 0, 11, "MinScore must be <= 10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRunFlags(t, "q", tt.strategy, tt.max, tt.min)
			_, err := runRequestFromFlags()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
