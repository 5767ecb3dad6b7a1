// Package interpreter extracts structured drafts from free-text assistant replies.
package interpreter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

// Interpreter turns an assistant reply into a draft. The boolean is false
// when the reply does not carry a complete draft.
type Interpreter interface {
	Extract(text string) (*domain.Draft, bool)
}

var (
	serviceRe     = regexp.MustCompile(`(?i)Service\s*:\s*([^\n]+)`)
	descriptionRe = regexp.MustCompile(`(?i)Description\s*:\s*([^\n]+)`)
	priceRe       = regexp.MustCompile(`(?i)(?:Prix|Price)\s*:\s*(\d+(?:[.,]\d{1,2})?)\s*(?:€|EUR)`)
)

// LabelInterpreter reads "Service:", "Description:" and "Prix:" lines.
// All three labels must match for a draft to be produced.
type LabelInterpreter struct{}

// NewLabelInterpreter creates a label-based interpreter.
func NewLabelInterpreter() *LabelInterpreter {
	return &LabelInterpreter{}
}

// Ensure LabelInterpreter implements Interpreter interface.
var _ Interpreter = (*LabelInterpreter)(nil)

// Extract returns the draft found in text, if any.
func (LabelInterpreter) Extract(text string) (*domain.Draft, bool) {
	service, ok := capture(serviceRe, text)
	if !ok {
		return nil, false
	}
	description, ok := capture(descriptionRe, text)
	if !ok {
		return nil, false
	}
	rawPrice, ok := capture(priceRe, text)
	if !ok {
		return nil, false
	}

	price, err := strconv.ParseFloat(strings.Replace(rawPrice, ",", ".", 1), 64)
	if err != nil || price < 0 {
		return nil, false
	}

	return &domain.Draft{
		Service:     service,
		Description: description,
		Price:       price,
	}, true
}

func capture(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	v := strings.TrimSpace(strings.TrimRight(m[1], "\r"))
	if v == "" {
		return "", false
	}
	return v, true
}
