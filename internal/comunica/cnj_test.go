package comunica

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCaseNumber(t *testing.T) {
	for _, raw := range []string{"1234567-89.2024.8.26.0100", "12345678920248260100", " 1234567-89 .2024.8.26.0100 "} {
		n, err := ParseCaseNumber(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, "12345678920248260100", n.Digits())
		assert.Equal(t, "1234567-89.2024.8.26.0100", n.String())
		assert.Equal(t, "TJSP", n.CourtAcronym())
	}
}

func TestParseCaseNumberRejects(t *testing.T) {
	cases := map[string]string{
		"0000000-00.0000.0.00.0000": "sequence is zero",
		"1234567-89.2024.8.26":      "expected 20 digits",
		"1234567-89.2024.8.26.01A0": "unexpected character",
		"1234567-89.1850.8.26.0100": "out of range",
		"1234567-89.2024.0.26.0100": "justice segment",
		"":                          "empty",
	}
	for raw, reason := range cases {
		_, err := ParseCaseNumber(raw)
		require.Error(t, err, raw)
		assert.True(t, IsInvalidCaseNumber(err), raw)
		assert.Contains(t, err.Error(), reason, raw)
	}
}

func TestCourtAcronym(t *testing.T) {
	cases := map[string]string{
		"0001234-56.2023.5.02.0001": "TRT2",
		"5000000-00.2022.4.03.6100": "TRF3",
		"0700000-00.2021.8.07.0001": "TJDFT",
		"1000000-00.2021.1.00.0000": "",
	}
	for raw, want := range cases {
		n, err := ParseCaseNumber(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, n.CourtAcronym(), raw)
	}
}

func TestCheckDigits(t *testing.T) {
	valid, err := ParseCaseNumber("0001234-32.2023.5.02.0001")
	require.NoError(t, err)
	assert.True(t, valid.ValidCheck())

	n, err := ParseCaseNumber("1234567-89.2024.8.26.0100")
	require.NoError(t, err)
	assert.False(t, n.ValidCheck())
	assert.Equal(t, "13", n.ExpectedCheck())
}
