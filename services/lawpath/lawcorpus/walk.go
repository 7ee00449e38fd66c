// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lawcorpus

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// NodeKind classifies an object visited by Walk.
type NodeKind int

const (
	// KindBranch is an object that is neither a law nor a form.
	KindBranch NodeKind = iota

	// KindLaw is an object with a name and a description or key sections.
	KindLaw

	// KindForm is an element of a reporting_forms list.
	KindForm
)

// String returns the kind name.
func (k NodeKind) String() string {
	switch k {
	case KindLaw:
		return "law"
	case KindForm:
		return "form"
	default:
		return "branch"
	}
}

// Node is one object visited by Walk.
type Node struct {
	// Path is the dotted/bracketed location, e.g. "federal.tax[2]".
	Path string

	// Kind classifies the object.
	Kind NodeKind

	// Object is the decoded JSON object. Mutations are visible in the tree.
	Object map[string]any

	// Owner is the path of the nearest enclosing law, or "" at top level.
	// For a law node it is the law's parent law.
	Owner string
}

// SkipSubtree may be returned by a WalkFunc to stop descent below a node.
var SkipSubtree = errors.New("skip subtree")

// WalkFunc is called for every object in the tree.
type WalkFunc func(n Node) error

// skippedKeys are never descended into: vector payloads and document metadata.
var skippedKeys = map[string]struct{}{
	"embedding":              {},
	"embedding_text":         {},
	"ground_truth_embedding": {},
	"ground_truth_text":      {},
	"metadata":               {},
}

// skipKey is the single skip predicate for the tree walk.
func skipKey(key string) bool {
	_, ok := skippedKeys[key]
	return ok
}

// Walk visits every object in root depth-first.
//
// Description:
//
//	Object keys are visited in ascending order and list elements by index,
//	so the visit order is deterministic. Elements of a reporting_forms list
//	are yielded as KindForm and not descended into. Keys matched by the
//	skip predicate are never visited.
//
// Inputs:
//
//   - root: The decoded document (map[string]any at the top).
//   - fn: Visitor. Returning SkipSubtree prunes the node's children; any
//     other error aborts the walk.
//
// Outputs:
//
//   - error: The first non-SkipSubtree error returned by fn.
func Walk(root any, fn WalkFunc) error {
	return walk(root, "", "", false, fn)
}

func walk(value any, path, owner string, inForms bool, fn WalkFunc) error {
	switch v := value.(type) {
	case map[string]any:
		kind := KindBranch
		switch {
		case inForms:
			kind = KindForm
		case isLawObject(v):
			kind = KindLaw
		}

		err := fn(Node{Path: path, Kind: kind, Object: v, Owner: owner})
		if errors.Is(err, SkipSubtree) {
			return nil
		}
		if err != nil {
			return err
		}
		if kind == KindForm {
			return nil
		}

		childOwner := owner
		if kind == KindLaw {
			childOwner = path
		}

		keys := make([]string, 0, len(v))
		for k := range v {
			if !skipKey(k) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)

		for _, k := range keys {
			if err := walk(v[k], joinPath(path, k), childOwner, k == "reporting_forms", fn); err != nil {
				return err
			}
		}
		return nil

	case []any:
		for i, item := range v {
			if err := walk(item, fmt.Sprintf("%s[%d]", path, i), owner, inForms, fn); err != nil {
				return err
			}
		}
		return nil

	default:
		return nil
	}
}

// isLawObject reports whether an object is a law node: a non-empty name and
// at least one of description or key_sections.
func isLawObject(obj map[string]any) bool {
	name, _ := obj["name"].(string)
	if strings.TrimSpace(name) == "" {
		return false
	}
	if _, ok := obj["description"]; ok {
		return true
	}
	_, ok := obj["key_sections"]
	return ok
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
