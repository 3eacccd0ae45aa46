package main

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/core"
)

func TestSampleRows(t *testing.T) {
	now := time.Date(2024, time.March, 10, 15, 0, 0, 0, time.UTC)
	rows := sampleRows(rand.New(rand.NewPCG(1, 1)), now, 2, 5)
	require.Len(t, rows, 10)

	first, _ := core.ParseDate("2024-02-01")
	today, _ := core.ParseDate("2024-03-10")
	for i, r := range rows {
		assert.Equal(t, i+1, r.Line)
		d, err := core.ParseDate(r.Date)
		require.NoError(t, err)
		assert.False(t, d.Before(first.Time), r.Date)
		assert.False(t, d.After(today.Time), r.Date)
		_, err = core.ParseDecimalToCents(r.Amount)
		assert.NoError(t, err, r.Amount)
	}

	again := sampleRows(rand.New(rand.NewPCG(1, 1)), now, 2, 5)
	assert.Equal(t, rows, again)
}

func TestReportRange(t *testing.T) {
	start, end, err := reportRange("2024-01-01", "2024-01-31", "")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", start.String())
	assert.Equal(t, "2024-01-31", end.String())

	_, _, err = reportRange("2024-01-01", "", "")
	assert.Error(t, err)

	start, end, err = reportRange("", "", "year")
	require.NoError(t, err)
	assert.Equal(t, 1, int(start.Month()))
	assert.Equal(t, 31, end.Day())

	_, _, err = reportRange("", "", "fortnight")
	assert.Error(t, err)
}

func TestReportWriter(t *testing.T) {
	for _, f := range []string{"json", "CSV", "xlsx", "pdf"} {
		w, err := reportWriter(f)
		require.NoError(t, err, f)
		assert.NotNil(t, w)
	}
	_, err := reportWriter("docx")
	assert.Error(t, err)
}
