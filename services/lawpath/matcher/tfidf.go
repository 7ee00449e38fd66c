// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package matcher

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
)

// TF-IDF parameters.
const (
	tfidfMinN       = 1
	tfidfMaxN       = 3
	tfidfVocabLimit = 5000
)

// ErrEmptyVocabulary indicates neither text produced a single term.
var ErrEmptyVocabulary = errors.New("empty vocabulary")

// tokenPattern matches runs of two or more word characters.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// TFIDFSimilarity fits a TF-IDF model on exactly the two texts and returns
// the cosine of their vectors.
//
// Description:
//
//	Terms are lower-cased word 1- to 3-grams. The vocabulary keeps the
//	5000 most frequent terms (ties by term). IDF is smoothed:
//	ln((1+n)/(1+df)) + 1 with n = 2. Vectors are raw counts times IDF,
//	L2-normalised.
//
// Outputs:
//
//	float64 - in [0, 1].
//	error - ErrEmptyVocabulary when no term survives.
func TFIDFSimilarity(a, b string) (float64, error) {
	ca := termCounts(a)
	cb := termCounts(b)

	total := make(map[string]int, len(ca)+len(cb))
	for t, n := range ca {
		total[t] += n
	}
	for t, n := range cb {
		total[t] += n
	}
	if len(total) == 0 {
		return 0, ErrEmptyVocabulary
	}

	vocab := make([]string, 0, len(total))
	for t := range total {
		vocab = append(vocab, t)
	}
	// Sums run in vocabulary order so repeated calls are bit-identical.
	sort.Slice(vocab, func(i, j int) bool {
		if total[vocab[i]] != total[vocab[j]] {
			return total[vocab[i]] > total[vocab[j]]
		}
		return vocab[i] < vocab[j]
	})
	if len(vocab) > tfidfVocabLimit {
		vocab = vocab[:tfidfVocabLimit]
	}

	const docs = 2.0
	var dot, na, nb float64
	for _, t := range vocab {
		df := 0.0
		if ca[t] > 0 {
			df++
		}
		if cb[t] > 0 {
			df++
		}
		idf := math.Log((1+docs)/(1+df)) + 1
		wa := float64(ca[t]) * idf
		wb := float64(cb[t]) * idf
		dot += wa * wb
		na += wa * wa
		nb += wb * wb
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// termCounts returns n-gram counts for one text.
func termCounts(text string) map[string]int {
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	counts := make(map[string]int)
	for n := tfidfMinN; n <= tfidfMaxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			counts[strings.Join(tokens[i:i+n], " ")]++
		}
	}
	return counts
}
