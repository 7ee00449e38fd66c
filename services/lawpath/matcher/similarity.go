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
	"math"
	"strings"

	"github.com/AleutianAI/lawpath/services/lawpath/records"
)

// Ensemble weights. They sum to 1.0; changing any of them changes rankings.
const (
	WeightCosine     = 0.30
	WeightEuclidean  = 0.15
	WeightManhattan  = 0.10
	WeightDotProduct = 0.10
	WeightJaccard    = 0.10
	WeightPearson    = 0.10
	WeightTFIDF      = 0.10
	WeightForm       = 0.05

	// GroundTruthBonus multiplies the score of a law matched through its
	// ground-truth vector.
	GroundTruthBonus = 1.10
)

// Form weight terms.
const (
	formWeightBase         = 0.5
	formWeightPerForm      = 0.05
	formWeightCountCap     = 0.2
	formWeightTypeMatch    = 0.1
	formWeightAgencyMatch  = 0.1
	formWeightHighSeverity = 0.1
	formWeightMedSeverity  = 0.05
	formWeightMax          = 1.0
)

// Similarities is the per-metric breakdown carried in each match.
type Similarities struct {
	Cosine     float64 `json:"cosine"`
	Euclidean  float64 `json:"euclidean"`
	Manhattan  float64 `json:"manhattan"`
	DotProduct float64 `json:"dot_product"`
	Jaccard    float64 `json:"jaccard"`
	Pearson    float64 `json:"pearson"`
	TFIDF      float64 `json:"tfidf"`
}

// VectorSimilarities computes every vector metric for v and u.
//
// Both vectors must have the same length. DotProduct is the raw inner
// product; on unit vectors it coincides with Cosine. TFIDF is left zero.
func VectorSimilarities(v, u []float32) Similarities {
	var (
		dot, nv, nu  float64
		l2, l1       float64
		inter, union int
		sumV, sumU   float64
	)
	for i := range v {
		a, b := float64(v[i]), float64(u[i])
		dot += a * b
		nv += a * a
		nu += b * b
		d := a - b
		l2 += d * d
		l1 += math.Abs(d)

		pa, pb := a > 0, b > 0
		if pa && pb {
			inter++
		}
		if pa || pb {
			union++
		}

		sumV += a
		sumU += b
	}

	s := Similarities{
		Euclidean:  1 / (1 + math.Sqrt(l2)),
		Manhattan:  1 / (1 + l1),
		DotProduct: dot,
	}
	if nv > 0 && nu > 0 {
		s.Cosine = dot / (math.Sqrt(nv) * math.Sqrt(nu))
	}
	if union > 0 {
		s.Jaccard = float64(inter) / float64(union)
	}
	s.Pearson = pearson(len(v), sumV, sumU, nv, nu, dot)
	return s
}

// pearson returns the correlation of the two vectors' coordinates, or 0
// when it is undefined (fewer than two coordinates or zero variance).
func pearson(n int, sumV, sumU, sumVV, sumUU, sumVU float64) float64 {
	if n < 2 {
		return 0
	}
	fn := float64(n)
	cov := sumVU - sumV*sumU/fn
	varV := sumVV - sumV*sumV/fn
	varU := sumUU - sumU*sumU/fn
	if varV <= 0 || varU <= 0 {
		return 0
	}
	r := cov / math.Sqrt(varV*varU)
	if math.IsNaN(r) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}

// FormWeight scores how well a law's reporting forms fit a violation.
//
// Description:
//
//	Starts at 0.5. A law without forms stops there. Otherwise it adds
//	min(0.2, 0.05 per form), then per form 0.1 when any violation_type
//	token occurs in the form name or description and 0.1 when the
//	violation jurisdiction and the form agency contain one another. HIGH
//	severity adds 0.1, MEDIUM 0.05. The result is clamped to 1.0.
//
//	Empty jurisdictions and agencies never match.
//
// Outputs:
//
//	float64 - in [0.5, 1.0].
func FormWeight(v *records.Violation, forms []records.Form) float64 {
	w := formWeightBase
	if len(forms) == 0 {
		return w
	}
	w += math.Min(formWeightCountCap, formWeightPerForm*float64(len(forms)))

	tokens := strings.Fields(strings.ToLower(v.ViolationType))
	jurisdiction := strings.ToLower(strings.TrimSpace(v.Jurisdiction))

	for _, f := range forms {
		name := strings.ToLower(f.FormName)
		desc := strings.ToLower(f.Description)
		for _, tok := range tokens {
			if strings.Contains(name, tok) || strings.Contains(desc, tok) {
				w += formWeightTypeMatch
				break
			}
		}

		agency := strings.ToLower(strings.TrimSpace(f.Agency))
		if jurisdiction != "" && agency != "" &&
			(strings.Contains(agency, jurisdiction) || strings.Contains(jurisdiction, agency)) {
			w += formWeightAgencyMatch
		}
	}

	switch v.Severity {
	case records.SeverityHigh:
		w += formWeightHighSeverity
	case records.SeverityMedium:
		w += formWeightMedSeverity
	}
	return math.Min(formWeightMax, w)
}

// EnsembleScore combines the metrics and form weight with the fixed weights
// and applies the ground-truth bonus.
func EnsembleScore(s Similarities, formWeight float64, groundTruth bool) float64 {
	score := WeightCosine*s.Cosine +
		WeightEuclidean*s.Euclidean +
		WeightManhattan*s.Manhattan +
		WeightDotProduct*s.DotProduct +
		WeightJaccard*s.Jaccard +
		WeightPearson*s.Pearson +
		WeightTFIDF*s.TFIDF +
		WeightForm*formWeight
	if groundTruth {
		score *= GroundTruthBonus
	}
	return score
}
