// Package questionbank loads and validates question banks from the upstream
// API and from the bundled fallback file.
package questionbank

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/question"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/sirupsen/logrus"
)

//go:embed bank.schema.json
var defaultSchema []byte

const schemaURL = "schema://question-bank.json"

// Validator decodes question banks, rejecting payloads that do not match the
// bank schema and dropping individual questions that cannot be graded.
type Validator struct {
	schema *jsonschema.Schema
	logger *logrus.Logger
}

// NewValidator compiles the bundled schema, or the one at schemaFile when set.
func NewValidator(schemaFile string, logger *logrus.Logger) (*Validator, error) {
	raw := defaultSchema
	if schemaFile != "" {
		b, err := os.ReadFile(schemaFile)
		if err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
		raw = b
	}
	var def any
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, def); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	return &Validator{schema: compiled, logger: logger}, nil
}

// DecodeBank implements ports.BankDecoder.
func (v *Validator) DecodeBank(r io.Reader) (question.Bank, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", question.ErrInvalidBank, err)
	}
	return v.Decode(raw)
}

// Decode validates raw against the schema and returns the usable questions.
func (v *Validator) Decode(raw []byte) (question.Bank, error) {
	// The jsonschema library expects a parsed JSON value (any), not raw bytes.
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %w", question.ErrInvalidBank, err)
	}
	if err := v.schema.Validate(parsed); err != nil {
		return nil, fmt.Errorf("%w: %w", question.ErrInvalidBank, err)
	}

	var bank question.Bank
	if err := json.Unmarshal(raw, &bank); err != nil {
		return nil, fmt.Errorf("%w: %w", question.ErrInvalidBank, err)
	}
	dropped := 0
	for section, qs := range bank {
		kept := qs[:0]
		for _, q := range qs {
			if err := q.Validate(); err != nil {
				dropped++
				if v.logger != nil {
					v.logger.WithFields(logrus.Fields{"section": section, "question_id": q.ID}).WithError(err).Warn("question bank: dropping question")
				}
				continue
			}
			kept = append(kept, q)
		}
		bank[section] = kept
	}
	if bank.Count() == 0 {
		return nil, fmt.Errorf("%w: no usable questions", question.ErrInvalidBank)
	}
	if dropped > 0 && v.logger != nil {
		v.logger.WithFields(logrus.Fields{"dropped": dropped, "kept": bank.Count()}).Info("question bank: decoded with dropped questions")
	}
	return bank, nil
}
