package core

// identifier.go implements the DDDD-DDDDDD customer identifier scheme.
//
// An identifier is a ten digit number rendered with a dash after the fourth
// digit. Allocation is plain increment: strip the dash, add one, zero pad back
// to ten digits and reinsert the dash. Storage that holds no customers starts
// from EmptyCursor, so the first identifier handed out is 9000-000001.

import (
	"fmt"
	"strconv"
)

const (
	identifierDigits = 10
	identifierSplit  = 4

	// MaxIdentifier is the largest value that renders in ten digits.
	MaxIdentifier Identifier = 9_999_999_999
)

// EmptyCursor is the allocation cursor used when storage holds no customers.
const EmptyCursor Identifier = 9_000_000_000

// Identifier is the numeric value of a customer key.
type Identifier uint64

// ParseIdentifier parses a DDDD-DDDDDD string.
func ParseIdentifier(s string) (Identifier, error) {
	if len(s) != identifierDigits+1 || s[identifierSplit] != '-' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
	}
	var v uint64
	for i := 0; i < len(s); i++ {
		if i == identifierSplit {
			continue
		}
		c := s[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
		}
		v = v*10 + uint64(c-'0')
	}
	return Identifier(v), nil
}

// String renders the identifier as DDDD-DDDDDD.
func (id Identifier) String() string {
	digits := strconv.FormatUint(uint64(id), 10)
	if len(digits) < identifierDigits {
		digits = zeros[:identifierDigits-len(digits)] + digits
	}
	return digits[:identifierSplit] + "-" + digits[identifierSplit:]
}

const zeros = "0000000000"

// Next returns the identifier one greater than id.
func (id Identifier) Next() (Identifier, error) {
	if id >= MaxIdentifier {
		return 0, fmt.Errorf("%w: no identifier after %s", ErrIdentifierOverflow, id)
	}
	return id + 1, nil
}

// Allocate returns the identifier that follows current, both in string form.
func Allocate(current string) (string, error) {
	id, err := ParseIdentifier(current)
	if err != nil {
		return "", err
	}
	next, err := id.Next()
	if err != nil {
		return "", err
	}
	return next.String(), nil
}

// Allocator hands out contiguous identifiers for one batch. It is owned by a
// single import transaction and never re-reads storage.
type Allocator struct {
	cursor Identifier
}

// NewAllocator starts allocating after cursor.
func NewAllocator(cursor Identifier) *Allocator {
	return &Allocator{cursor: cursor}
}

// Next advances the cursor and returns the new identifier.
func (a *Allocator) Next() (Identifier, error) {
	next, err := a.cursor.Next()
	if err != nil {
		return 0, err
	}
	a.cursor = next
	return next, nil
}

// Cursor returns the last identifier handed out.
func (a *Allocator) Cursor() Identifier {
	return a.cursor
}
