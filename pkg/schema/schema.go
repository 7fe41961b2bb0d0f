package schema

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateBytes checks a raw JSON document against an embedded JSON Schema
// and returns the flattened violation messages.
func ValidateBytes(schemaJSON string, doc []byte) ([]string, error) {
	return run(gojsonschema.NewStringLoader(schemaJSON), gojsonschema.NewBytesLoader(doc))
}

// Validate checks an already-decoded Go value against an embedded JSON Schema.
func Validate(schemaJSON string, doc any) ([]string, error) {
	return run(gojsonschema.NewStringLoader(schemaJSON), gojsonschema.NewGoLoader(doc))
}

func run(schemaLoader, docLoader gojsonschema.JSONLoader) ([]string, error) {
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, fmt.Errorf("schema validate: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return errs, nil
}
