package main

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsDefaults(t *testing.T) {
	opts, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, 1e-8, opts.minPower)
	assert.Equal(t, 5e-7, opts.maxPower)
	assert.Equal(t, 50, opts.points)
	assert.Equal(t, 1024, opts.packetSize)
}

func TestParseFlagsRejectsBadRange(t *testing.T) {
	for _, args := range [][]string{
		{"--points", "1"},
		{"--min-power", "0"},
		{"--min-power", "1e-6", "--max-power", "1e-7"},
		{"--packet-size", "0"},
		{"--form-factor", "1.5"},
	} {
		_, err := parseFlags(args)
		assert.Error(t, err, "%v", args)
	}
}

func TestSweepPowersSpansRange(t *testing.T) {
	linear := sweepPowers(options{minPower: 1e-8, maxPower: 5e-8, points: 5})
	assert.InDeltaSlice(t, []float64{1e-8, 2e-8, 3e-8, 4e-8, 5e-8}, linear, 1e-20)

	logs := sweepPowers(options{minPower: 1e-9, maxPower: 1e-7, points: 3, logSpacing: true})
	assert.InEpsilonSlice(t, []float64{1e-9, 1e-8, 1e-7}, logs, 1e-9)
}

func TestWriteCurveIsMonotonic(t *testing.T) {
	opts, err := parseFlags([]string{"--points", "20"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeCurve(&buf, opts))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 21)
	assert.Equal(t, []string{"rx_power_w", "ber", "success_rate"}, rows[0])

	prevBER, prevPSR := 1.0, 0.0
	for _, row := range rows[1:] {
		ber, err := strconv.ParseFloat(row[1], 64)
		require.NoError(t, err)
		psr, err := strconv.ParseFloat(row[2], 64)
		require.NoError(t, err)
		assert.LessOrEqual(t, ber, prevBER)
		assert.GreaterOrEqual(t, psr, prevPSR)
		prevBER, prevPSR = ber, psr
	}
	last, err := strconv.ParseFloat(rows[len(rows)-1][2], 64)
	require.NoError(t, err)
	assert.Greater(t, last, 0.99)
}
