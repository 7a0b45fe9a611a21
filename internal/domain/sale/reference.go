package sale

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReferenceGenerator produces sale references.
type ReferenceGenerator interface {
	Next(now time.Time) string
}

// ReferenceFunc adapts a function to ReferenceGenerator.
type ReferenceFunc func(now time.Time) string

// Next implements ReferenceGenerator.
func (f ReferenceFunc) Next(now time.Time) string { return f(now) }

// TimeReferences generates references like INV-20240131-154502-1A2B3C4D.
// The suffix is random so two commits within the same second normally differ;
// a collision is reported by the ledger as ErrDuplicateReference.
type TimeReferences struct{}

// Next implements ReferenceGenerator.
func (TimeReferences) Next(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "INV-" + now.Format("20060102-150405") + "-" + suffix
}
