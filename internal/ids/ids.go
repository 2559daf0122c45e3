// Package ids formats and parses the human-readable task, epic and ADR keys.
package ids

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/dusktreader/site-nine/internal/domain"
)

const (
	EpicPrefix = "EPC"
	ADRPrefix  = "ADR"
	MinNumber  = 1
	MaxNumber  = 9999
)

var (
	taskPattern = regexp.MustCompile(`^([A-Z]{3})-([CHML])-(\d{4})$`)
	epicPattern = regexp.MustCompile(`^EPC-([CHML])-(\d{4})$`)
	adrPattern  = regexp.MustCompile(`^ADR-(\d{3}|[1-9]\d{3})$`)
)

// FormatError reports an ID that does not match the expected shape.
type FormatError struct {
	ID     string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid id %q: %s", e.ID, e.Reason)
}

// RangeError reports a sequence number outside 1..9999.
type RangeError struct {
	Number int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("sequence number %d out of range %d-%d", e.Number, MinNumber, MaxNumber)
}

type TaskID struct {
	Role     domain.Role
	Priority domain.Priority
	Number   int
}

func (t TaskID) String() string {
	return fmt.Sprintf("%s-%s-%04d", t.Role.Prefix(), t.Priority.Code(), t.Number)
}

type EpicID struct {
	Priority domain.Priority
	Number   int
}

func (e EpicID) String() string {
	return fmt.Sprintf("%s-%s-%04d", EpicPrefix, e.Priority.Code(), e.Number)
}

func checkNumber(n int) error {
	if n < MinNumber || n > MaxNumber {
		return &RangeError{Number: n}
	}
	return nil
}

func FormatTaskID(role domain.Role, priority domain.Priority, n int) (string, error) {
	if !role.Valid() {
		return "", &domain.EnumError{Kind: "role", Value: string(role)}
	}
	if !priority.Valid() {
		return "", &domain.EnumError{Kind: "priority", Value: string(priority)}
	}
	if err := checkNumber(n); err != nil {
		return "", err
	}
	return TaskID{Role: role, Priority: priority, Number: n}.String(), nil
}

func ParseTaskID(id string) (TaskID, error) {
	m := taskPattern.FindStringSubmatch(id)
	if m == nil {
		return TaskID{}, &FormatError{ID: id, Reason: "expected PREFIX-P-NNNN"}
	}
	role, ok := domain.RoleForPrefix(m[1])
	if !ok {
		return TaskID{}, &FormatError{ID: id, Reason: fmt.Sprintf("unknown role prefix %s", m[1])}
	}
	priority, ok := domain.PriorityForCode(m[2])
	if !ok {
		return TaskID{}, &FormatError{ID: id, Reason: fmt.Sprintf("unknown priority code %s", m[2])}
	}
	n, _ := strconv.Atoi(m[3])
	if err := checkNumber(n); err != nil {
		return TaskID{}, err
	}
	return TaskID{Role: role, Priority: priority, Number: n}, nil
}

func FormatEpicID(priority domain.Priority, n int) (string, error) {
	if !priority.Valid() {
		return "", &domain.EnumError{Kind: "priority", Value: string(priority)}
	}
	if err := checkNumber(n); err != nil {
		return "", err
	}
	return EpicID{Priority: priority, Number: n}.String(), nil
}

func ParseEpicID(id string) (EpicID, error) {
	m := epicPattern.FindStringSubmatch(id)
	if m == nil {
		return EpicID{}, &FormatError{ID: id, Reason: "expected EPC-P-NNNN"}
	}
	priority, _ := domain.PriorityForCode(m[1])
	n, _ := strconv.Atoi(m[2])
	if err := checkNumber(n); err != nil {
		return EpicID{}, err
	}
	return EpicID{Priority: priority, Number: n}, nil
}

// FormatADRID renders n as ADR-NNN, widening to four digits past 999.
func FormatADRID(n int) (string, error) {
	if err := checkNumber(n); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%03d", ADRPrefix, n), nil
}

// ParseADRID returns the sequence number of an ADR key.
func ParseADRID(id string) (int, error) {
	m := adrPattern.FindStringSubmatch(id)
	if m == nil {
		return 0, &FormatError{ID: id, Reason: "expected ADR-NNN"}
	}
	n, _ := strconv.Atoi(m[1])
	if err := checkNumber(n); err != nil {
		return 0, err
	}
	return n, nil
}

// NextADRNumber returns one past the highest ADR sequence in existing.
// Malformed keys are ignored.
func NextADRNumber(existing []string) int {
	highest := 0
	for _, id := range existing {
		if n, err := ParseADRID(id); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1
}

// sequence extracts the trailing four-digit number of any task or epic key.
func sequence(id string) (int, bool) {
	if len(id) < 4 {
		return 0, false
	}
	n, err := strconv.Atoi(id[len(id)-4:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// NextNumber returns one past the highest sequence found in existing. The
// counter is shared across every prefix and priority code.
func NextNumber(existing []string) int {
	highest := 0
	for _, id := range existing {
		if n, ok := sequence(id); ok && n > highest {
			highest = n
		}
	}
	return highest + 1
}

// SortTaskIDs orders keys by priority rank, role prefix, then sequence.
// Malformed keys sort last, lexically.
func SortTaskIDs(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		a, errA := ParseTaskID(keys[i])
		b, errB := ParseTaskID(keys[j])
		switch {
		case errA != nil && errB != nil:
			return keys[i] < keys[j]
		case errA != nil:
			return false
		case errB != nil:
			return true
		}
		return Less(a, b)
	})
}

// Less compares two parsed task keys in list order.
func Less(a, b TaskID) bool {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra < rb
	}
	if pa, pb := a.Role.Prefix(), b.Role.Prefix(); pa != pb {
		return pa < pb
	}
	return a.Number < b.Number
}
