package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumnLetters(t *testing.T) {
	cases := map[int]string{0: "A", 1: "B", 25: "Z", 26: "AA", 27: "AB", 51: "AZ", 52: "BA", 701: "ZZ", 702: "AAA"}
	for col, want := range cases {
		assert.Equal(t, want, ColumnLetters(col), "col %d", col)
	}
}

func TestA1QuotesSheetTitles(t *testing.T) {
	assert.Equal(t, "'Cliente X'!C5", A1("Cliente X", 5, 2))
	assert.Equal(t, "'D''Avila'!A2", A1("D'Avila", 2, 0))
}
