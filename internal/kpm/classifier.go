// Package kpm turns raw editor events into per-project keystroke aggregates.
package kpm

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/j-veylop/kpm-aggregator/internal/models"
)

// PasteThreshold is the inserted character count above which an insertion
// counts as a paste instead of typing.
const PasteThreshold = 8

var (
	// ErrMalformedEvent is reported for events missing a required field.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrAmbiguousChange is reported when an event carries more than one change record.
	ErrAmbiguousChange = errors.New("ambiguous change: more than one change record")
)

// Kind is the classification of a single content change.
type Kind int

const (
	// KindNoOp is a change with no net effect.
	KindNoOp Kind = iota
	// KindAdd is a typed insertion.
	KindAdd
	// KindDelete is a pure removal.
	KindDelete
	// KindPaste is an insertion longer than PasteThreshold.
	KindPaste
	// KindNewline is an insertion made only of line breaks.
	KindNewline
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "add"
	case KindDelete:
		return "delete"
	case KindPaste:
		return "paste"
	case KindNewline:
		return "newline"
	default:
		return "noop"
	}
}

// Classification is the result of classifying a content change.
type Classification struct {
	Kind Kind
	// Delta is the signed length change: inserted characters, or the
	// negated removed extent for a pure deletion.
	Delta int
	// HasNewline reports whether the inserted text contains a line break.
	HasNewline bool
}

// Counts reports whether the classification contributes a keystroke.
func (c Classification) Counts() bool {
	return c.Kind != KindNoOp && c.Delta != 0
}

// ClassifyChange classifies one change given its inserted text and the
// length of the range it replaced.
func ClassifyChange(text string, rangeLength int) Classification {
	c := Classification{
		Delta:      utf8.RuneCountInString(text),
		HasNewline: strings.ContainsAny(text, "\r\n"),
	}

	if c.Delta == 0 && rangeLength > 0 {
		c.Delta = -rangeLength
	}

	switch {
	case c.Delta == 0:
		c.Kind = KindNoOp
	case c.Delta > PasteThreshold:
		c.Kind = KindPaste
	case c.Delta < 0:
		c.Kind = KindDelete
	case strings.Trim(text, "\r\n") != "":
		c.Kind = KindAdd
	default:
		c.Kind = KindNewline
	}
	return c
}

// Classify classifies the change records of a single event. Only events with
// exactly one record are classified; more than one yields ErrAmbiguousChange.
func Classify(changes []models.ChangeRecord) (Classification, error) {
	switch len(changes) {
	case 0:
		return Classification{Kind: KindNoOp}, nil
	case 1:
		return ClassifyChange(changes[0].Text, changes[0].RangeLength), nil
	default:
		return Classification{Kind: KindNoOp}, ErrAmbiguousChange
	}
}
