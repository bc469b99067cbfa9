package comunica

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CaseNumber is a parsed CNJ number, NNNNNNN-DD.AAAA.J.TR.OOOO.
type CaseNumber struct {
	Sequence string
	Check    string
	Year     string
	Justice  string
	Court    string
	Origin   string
}

var stateCourts = map[string]string{
	"01": "TJAC", "02": "TJAL", "03": "TJAP", "04": "TJAM", "05": "TJBA",
	"06": "TJCE", "07": "TJDFT", "08": "TJES", "09": "TJGO", "10": "TJMA",
	"11": "TJMT", "12": "TJMS", "13": "TJMG", "14": "TJPA", "15": "TJPB",
	"16": "TJPR", "17": "TJPE", "18": "TJPI", "19": "TJRJ", "20": "TJRN",
	"21": "TJRS", "22": "TJRO", "23": "TJRR", "24": "TJSC", "25": "TJSE",
	"26": "TJSP", "27": "TJTO",
}

// ParseCaseNumber accepts the masked form or 20 bare digits. Separators
// (dots, dashes, spaces) are ignored.
func ParseCaseNumber(raw string) (CaseNumber, error) {
	digits := strings.Map(func(r rune) rune {
		switch r {
		case '.', '-', ' ', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	invalid := func(format string, args ...any) (CaseNumber, error) {
		return CaseNumber{}, &InvalidCaseNumberError{Number: raw, Reason: fmt.Sprintf(format, args...)}
	}

	if digits == "" {
		return invalid("empty")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return invalid("unexpected character %q", r)
		}
	}
	if len(digits) != 20 {
		return invalid("expected 20 digits, got %d", len(digits))
	}

	n := CaseNumber{
		Sequence: digits[0:7],
		Check:    digits[7:9],
		Year:     digits[9:13],
		Justice:  digits[13:14],
		Court:    digits[14:16],
		Origin:   digits[16:20],
	}
	if strings.Trim(n.Sequence, "0") == "" {
		return invalid("sequence is zero")
	}
	year, _ := strconv.Atoi(n.Year)
	if year < 1900 || year > time.Now().Year()+1 {
		return invalid("year %s out of range", n.Year)
	}
	if n.Justice == "0" {
		return invalid("justice segment is zero")
	}
	return n, nil
}

func (n CaseNumber) Digits() string {
	return n.Sequence + n.Check + n.Year + n.Justice + n.Court + n.Origin
}

func (n CaseNumber) String() string {
	return fmt.Sprintf("%s-%s.%s.%s.%s.%s", n.Sequence, n.Check, n.Year, n.Justice, n.Court, n.Origin)
}

// ExpectedCheck computes the ISO 7064 mod 97-10 check digits defined by CNJ
// Resolution 65/2008.
func (n CaseNumber) ExpectedCheck() string {
	rem := 0
	for _, r := range n.Sequence + n.Year + n.Justice + n.Court + n.Origin + "00" {
		rem = (rem*10 + int(r-'0')) % 97
	}
	return fmt.Sprintf("%02d", 98-rem)
}

func (n CaseNumber) ValidCheck() bool { return n.Check == n.ExpectedCheck() }

// CourtAcronym derives the court from the J.TR segment for state, labour and
// federal courts. It returns "" for other branches.
func (n CaseNumber) CourtAcronym() string {
	tr, _ := strconv.Atoi(n.Court)
	switch n.Justice {
	case "8":
		return stateCourts[n.Court]
	case "5":
		return fmt.Sprintf("TRT%d", tr)
	case "4":
		return fmt.Sprintf("TRF%d", tr)
	}
	return ""
}
