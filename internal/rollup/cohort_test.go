package rollup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetention(t *testing.T) {
	counts, ratios := Retention(tableOf(
		event("1", "Food Support", "2020-01-05"),
		event("2", "Housing", "2020-01-20"),
		event("1", "Food Support", "2020-02-10"),
	))

	assert.Equal(t, []time.Time{day("2020-01-05"), day("2020-01-20")}, counts.Cohorts)
	assert.Equal(t, []int{0, 1}, counts.Offsets)

	n, ok := counts.ActiveAt(day("2020-01-05"), 0)
	require.True(t, ok)
	assert.Equal(t, 1, n)
	n, ok = counts.ActiveAt(day("2020-01-05"), 1)
	require.True(t, ok)
	assert.Equal(t, 1, n)
	n, ok = counts.ActiveAt(day("2020-01-20"), 0)
	require.True(t, ok)
	assert.Equal(t, 1, n)

	_, ok = counts.ActiveAt(day("2020-01-20"), 1)
	assert.False(t, ok, "cells are sparse: unobserved pairs do not exist")

	assert.Equal(t, counts.Cohorts, ratios.Cohorts)
	assert.Equal(t, counts.Offsets, ratios.Offsets)
	r, ok := ratios.RatioAt(day("2020-01-05"), 1)
	require.True(t, ok)
	assert.InDelta(t, 1.0, r, 1e-9)
	r, ok = ratios.RatioAt(day("2020-01-20"), 0)
	require.True(t, ok)
	assert.InDelta(t, 1.0, r, 1e-9)
	_, ok = ratios.RatioAt(day("2020-01-20"), 1)
	assert.False(t, ok)
}

func TestRetentionDistinctRecipients(t *testing.T) {
	counts, ratios := Retention(tableOf(
		event("1", "Food Support", "2020-01-05"),
		event("2", "Food Support", "2020-01-05"),
		event("1", "Housing", "2020-01-05"),
		event("2", "Food Support", "2020-02-01"),
	))

	require.Equal(t, []time.Time{day("2020-01-05")}, counts.Cohorts)
	n, ok := counts.ActiveAt(day("2020-01-05"), 0)
	require.True(t, ok)
	assert.Equal(t, 2, n, "a recipient counts once per cell however many events they have")
	n, ok = counts.ActiveAt(day("2020-01-05"), 1)
	require.True(t, ok)
	assert.Equal(t, 1, n)

	r, ok := ratios.RatioAt(day("2020-01-05"), 1)
	require.True(t, ok)
	assert.InDelta(t, 0.5, r, 1e-9)
}

func TestRetentionYearBoundary(t *testing.T) {
	counts, ratios := Retention(tableOf(
		event("9", "Food Support", "2019-12-15"),
		event("9", "Food Support", "2020-01-10"),
	))

	assert.Equal(t, []int{-11, 0}, counts.Offsets, "month-of-year subtraction wraps across years")

	n, ok := counts.ActiveAt(day("2019-12-15"), -11)
	require.True(t, ok)
	assert.Equal(t, 1, n)

	r, ok := ratios.RatioAt(day("2019-12-15"), -11)
	require.True(t, ok)
	assert.InDelta(t, 1.0, r, 1e-9, "the base is the offset-zero cell, not the first column")
}

func TestRetentionSkipsMissingIDs(t *testing.T) {
	counts, ratios := Retention(tableOf(
		event("", "Food Support", "2020-01-05"),
		event("", "Housing", "2020-02-01"),
	))

	assert.Empty(t, counts.Cohorts)
	assert.Empty(t, counts.Offsets)
	assert.Empty(t, ratios.Cohorts)
}
