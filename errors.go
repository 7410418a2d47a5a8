package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/alphadose/haxmap"
)

// ErrorCategory represents a category of similar errors
type ErrorCategory struct {
	Name        string
	Count       atomic.Int64
	Examples    []string
	mu          sync.Mutex
	maxExamples int
}

// ErrorGrouper counts skipped queries by cause.
type ErrorGrouper struct {
	categories *haxmap.Map[string, *ErrorCategory]
}

func NewErrorGrouper() *ErrorGrouper {
	return &ErrorGrouper{
		categories: haxmap.New[string, *ErrorCategory](),
	}
}

// RecordError categorizes and records an error. example is kept verbatim
// for the first few occurrences of each category.
func (eg *ErrorGrouper) RecordError(err error, example string) {
	if err == nil {
		return
	}

	name := categorizeError(err)
	cat, _ := eg.categories.GetOrCompute(name, func() *ErrorCategory {
		return &ErrorCategory{Name: name, maxExamples: 5}
	})
	cat.Count.Add(1)

	cat.mu.Lock()
	if len(cat.Examples) < cat.maxExamples {
		if example == "" {
			example = err.Error()
		}
		cat.Examples = append(cat.Examples, example)
	}
	cat.mu.Unlock()
}

// Total returns the number of recorded errors.
func (eg *ErrorGrouper) Total() int64 {
	var total int64
	eg.categories.ForEach(func(_ string, cat *ErrorCategory) bool {
		total += cat.Count.Load()
		return true
	})
	return total
}

// GetSummary returns a formatted summary of all errors
func (eg *ErrorGrouper) GetSummary() string {
	var cats []*ErrorCategory
	eg.categories.ForEach(func(_ string, cat *ErrorCategory) bool {
		cats = append(cats, cat)
		return true
	})
	if len(cats) == 0 {
		return ""
	}
	sort.Slice(cats, func(i, j int) bool {
		return cats[i].Count.Load() > cats[j].Count.Load()
	})

	var builder strings.Builder
	builder.WriteString("\n=== Skipped Queries ===\n")
	builder.WriteString(fmt.Sprintf("Total skipped: %d\n", eg.Total()))

	for _, cat := range cats {
		builder.WriteString(fmt.Sprintf("\n%s: %d occurrences\n", cat.Name, cat.Count.Load()))

		cat.mu.Lock()
		for i, example := range cat.Examples {
			if i >= 3 { // Show max 3 examples
				builder.WriteString(fmt.Sprintf("  ... and %d more\n", len(cat.Examples)-3))
				break
			}
			builder.WriteString(fmt.Sprintf("  - %s\n", example))
		}
		cat.mu.Unlock()

		if suggestion := getErrorSuggestion(cat.Name); suggestion != "" {
			builder.WriteString(fmt.Sprintf("  → %s\n", suggestion))
		}
	}

	return builder.String()
}

// categorizeError determines the category of an error
func categorizeError(err error) string {
	switch {
	case errors.Is(err, ErrEmptyLabel):
		return "Empty Label"
	case errors.Is(err, ErrLabelTooLong):
		return "Label Too Long"
	case errors.Is(err, ErrBufferExhausted):
		return "Name Too Long"
	case errors.Is(err, ErrEncoding):
		return "Encoding Error"
	}

	errMsg := err.Error()
	parts := strings.SplitN(errMsg, ":", 2)
	if len(parts) > 0 && len(parts[0]) < 50 {
		return strings.TrimSpace(parts[0])
	}
	return "Other Errors"
}

// getErrorSuggestion provides helpful suggestions for common error types
func getErrorSuggestion(category string) string {
	suggestions := map[string]string{
		"Empty Label":    "Names must not contain consecutive dots or start with a dot",
		"Label Too Long": "Labels are limited to 255 bytes",
		"Name Too Long":  "The encoded name does not fit into the query buffer; raise buffer_size",
	}

	return suggestions[category]
}

// ContextualError provides enhanced error messages with context
type ContextualError struct {
	Op      string // Operation that failed
	Context string // Additional context
	Err     error  // Underlying error
	Hint    string // Helpful hint for resolution
}

func (e *ContextualError) Error() string {
	var msg strings.Builder

	if e.Op != "" {
		msg.WriteString(e.Op)
		msg.WriteString(": ")
	}

	if e.Err != nil {
		msg.WriteString(e.Err.Error())
	}

	if e.Context != "" {
		msg.WriteString(" (")
		msg.WriteString(e.Context)
		msg.WriteString(")")
	}

	if e.Hint != "" {
		msg.WriteString("\n  → ")
		msg.WriteString(e.Hint)
	}

	return msg.String()
}

func (e *ContextualError) Unwrap() error {
	return e.Err
}

// WrapErrorWithContext creates a contextual error with helpful information
func WrapErrorWithContext(op string, err error, context string) error {
	if err == nil {
		return nil
	}

	hint := ""
	errLower := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errLower, "permission denied") && strings.Contains(op, "sendto"):
		hint = "A local firewall may be rejecting the traffic, or the target is a broadcast address"
	case strings.Contains(errLower, "operation not permitted") && strings.Contains(op, "setsockopt"):
		hint = "Forcing socket buffer sizes needs CAP_NET_ADMIN; run with sudo or lower socket_buffer"
	case strings.Contains(errLower, "network is unreachable"):
		hint = "No route to the target; check the address family and the routing table"
	case strings.Contains(errLower, "no such device") || strings.Contains(errLower, "link not found"):
		hint = fmt.Sprintf("Interface '%s' not found. List interfaces with 'ip link show'", context)
	case strings.Contains(errLower, "address already in use"):
		hint = "Another process is already listening on this address"
	case strings.Contains(errLower, "no buffer space"):
		hint = "The send queue is full; lower the rate or raise socket_buffer"
	}

	return &ContextualError{
		Op:      op,
		Context: context,
		Err:     err,
		Hint:    hint,
	}
}
