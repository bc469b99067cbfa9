package model

import (
	"strings"
	"time"
)

const (
	StatusUpdated        = "ATUALIZADO"
	StatusNoPublications = "SEM_PUBLICACOES"
)

// CaseRecord is one spreadsheet row tracking a case. Identity is Sheet + CaseNumber.
type CaseRecord struct {
	Sheet               string    `json:"sheet"`
	Row                 int       `json:"row"` // 1-based, header is row 1
	CaseNumber          string    `json:"case_number"`
	CurrentStatus       string    `json:"current_status"`
	LastChecked         string    `json:"last_checked"`
	Summary             string    `json:"summary"`
	LastPublicationDate time.Time `json:"last_publication_date"`
	LastPublicationType string    `json:"last_publication_type"`
}

// Key identifies the record within a run regardless of number formatting.
func (c CaseRecord) Key() string {
	return c.Sheet + "\x00" + DigitsOnly(c.CaseNumber)
}

type Lawyer struct {
	Name  string `json:"name"`
	OAB   string `json:"oab"`
	State string `json:"state"`
}

type Recipient struct {
	Name string `json:"name"`
	Pole string `json:"pole"`
}

// Publication is a docket notice fetched during a run; never persisted except
// through the derived fields of a CaseRecord.
type Publication struct {
	ID         int64       `json:"id"`
	CaseNumber string      `json:"case_number"`
	Date       time.Time   `json:"date"`
	Type       string      `json:"type"`
	Court      string      `json:"court"`
	Organ      string      `json:"organ"`
	Class      string      `json:"class"`
	Text       string      `json:"text"`
	Medium     string      `json:"medium"`
	Hash       string      `json:"hash"`
	Lawyers    []Lawyer    `json:"lawyers,omitempty"`
	Recipients []Recipient `json:"recipients,omitempty"`
}

// Update holds the fields to write back. Empty strings and zero times are
// left untouched in the sheet.
type Update struct {
	Status          string    `json:"status,omitempty"`
	LastChecked     time.Time `json:"last_checked"`
	Summary         string    `json:"summary,omitempty"`
	PublicationDate time.Time `json:"publication_date,omitempty"`
	PublicationType string    `json:"publication_type,omitempty"`
}

func (u Update) HasPublication() bool { return !u.PublicationDate.IsZero() }

type Outcome string

const (
	OutcomeUpdated          Outcome = "updated"
	OutcomeNoNewPublication Outcome = "no_new_publication"
	OutcomeError            Outcome = "error"
)

type RunResult struct {
	Sheet           string  `json:"sheet"`
	Row             int     `json:"row"`
	CaseNumber      string  `json:"case_number"`
	Outcome         Outcome `json:"outcome"`
	Detail          string  `json:"detail,omitempty"`
	NewPublications int     `json:"new_publications"`

	// Update is what was written, or what would have been written in a dry run.
	Update  *Update `json:"update,omitempty"`
	Written bool    `json:"written"`
}

func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
