package model

import "time"

// Canonical column names, in positional order.
const (
	ColTime          = "time"
	ColClientAddress = "client_address"
	ColMethod        = "method"
	ColResource      = "resource"
	ColStatus        = "status"
)

// CanonicalColumns is the fixed five-field record shape.
var CanonicalColumns = []string{ColTime, ColClientAddress, ColMethod, ColResource, ColStatus}

// UnknownCountry is stored when no country could be resolved.
const UnknownCountry = "Unknown"

// RawRecord is an ordered tuple of fields as read from input.
type RawRecord []string

// Table is a set of raw records with named columns.
type Table struct {
	Columns []string
	Rows    []RawRecord
}

// Fields holds the five canonical fields of one normalized record.
type Fields struct {
	Time          string
	ClientAddress string
	Method        string
	Resource      string
	Status        string
}

// LogRecord is a single enriched access-log record.
type LogRecord struct {
	Time          string    `json:"time"`
	ClientAddress string    `json:"client_address"`
	Method        string    `json:"method"`
	Resource      string    `json:"resource"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Hour          int       `json:"hour"`
	Weekday       string    `json:"weekday"`
	IsConversion  bool      `json:"is_conversion"`
	Country       string    `json:"country"`
}

// IngestionState is how far a watched file has been consumed.
type IngestionState struct {
	Path   string `json:"path"`
	Offset int64  `json:"offset"`
}
