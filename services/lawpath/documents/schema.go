// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package documents

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Kind names a document type with a bundled schema.
type Kind string

const (
	KindViolations Kind = "violations"
	KindLaws       Kind = "laws"
	KindMatches    Kind = "matches"
	KindPathways   Kind = "pathways"
)

// Kinds lists every document kind in a stable order.
var Kinds = []Kind{KindViolations, KindLaws, KindMatches, KindPathways}

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://aleutian.ai/lawpath/"

var (
	schemasOnce sync.Once
	schemas     map[Kind]*jsonschema.Schema
	schemasErr  error
)

func compileSchemas() (map[Kind]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		for _, k := range Kinds {
			data, err := schemaFS.ReadFile("schemas/" + string(k) + ".schema.json")
			if err != nil {
				schemasErr = fmt.Errorf("read %s schema: %w", k, err)
				return
			}
			if err := c.AddResource(schemaURL(k), bytes.NewReader(data)); err != nil {
				schemasErr = fmt.Errorf("load %s schema: %w", k, err)
				return
			}
		}
		out := make(map[Kind]*jsonschema.Schema, len(Kinds))
		for _, k := range Kinds {
			s, err := c.Compile(schemaURL(k))
			if err != nil {
				schemasErr = fmt.Errorf("compile %s schema: %w", k, err)
				return
			}
			out[k] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

func schemaURL(k Kind) string { return schemaBase + string(k) + ".schema.json" }

// Validate checks data against the bundled schema for kind.
//
// Description:
//
//	Decodes data and validates it against the compiled JSON Schema. Schema
//	failures wrap ErrInvalidDocument and carry the validator's detailed
//	message, including the instance location of the first failure.
//
// Inputs:
//
//	kind - Document kind. Unknown kinds return an error.
//	data - Raw JSON document.
//
// Outputs:
//
//	error - Nil when the document conforms.
//
// Thread Safety: Safe for concurrent use. Schemas compile once.
func Validate(kind Kind, data []byte) error {
	compiled, err := compileSchemas()
	if err != nil {
		return err
	}
	s, ok := compiled[kind]
	if !ok {
		return fmt.Errorf("unknown document kind %q", kind)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDocument, kind, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDocument, kind, err)
	}
	return nil
}

// decodeDocument decodes one JSON value with numbers kept as json.Number,
// the form the validator expects.
func decodeDocument(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after document")
	}
	return doc, nil
}

// ParseKind maps a kind name to a Kind.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown document kind %q", name)
}
