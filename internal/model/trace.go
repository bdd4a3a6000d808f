package model

import (
	"fmt"

	"github.com/google/uuid"
)

// traceNamespace is the fixed UUID namespace for all trace IDs. Trace
// IDs must be a pure function of the fact's identity so that two runs
// with the same seed produce byte-identical output.
var traceNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("retailgen"))

// TraceID derives the deterministic trace ID for a fact. kind is the
// fact table name and key uniquely identifies the row within that table
// (e.g. a receipt ID, or a shipment ID plus state).
func TraceID(kind, key string) string {
	return uuid.NewSHA1(traceNamespace, []byte(kind+":"+key)).String()
}

// TraceIDf is TraceID with Sprintf-style key construction.
func TraceIDf(kind, format string, args ...any) string {
	return TraceID(kind, fmt.Sprintf(format, args...))
}
