// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pathway

import "sort"

// ShortestPathway is the lowest-weight route of one pair.
type ShortestPathway struct {
	Pair   string   `json:"pair"`
	Path   []string `json:"path"`
	Weight float64  `json:"weight"`
	Hops   int      `json:"hops"`
}

// SimilarPathway is the route of one pair whose weakest edge is strongest.
type SimilarPathway struct {
	Pair       string   `json:"pair"`
	Path       []string `json:"path"`
	Similarity float64  `json:"similarity"`
	Hops       int      `json:"hops"`
}

// CommonPathway aggregates every occurrence of one path string.
type CommonPathway struct {
	Path          string  `json:"path"`
	Frequency     int     `json:"frequency"`
	AvgWeight     float64 `json:"avg_weight"`
	AvgSimilarity float64 `json:"avg_similarity"`
}

// OptimalPathways is the selection made across all pairs.
type OptimalPathways struct {
	ShortestPaths          []ShortestPathway `json:"shortest_paths"`
	HighestSimilarityPaths []SimilarPathway  `json:"highest_similarity_paths"`
	MostCommonPaths        []CommonPathway   `json:"most_common_paths"`
}

// SelectOptimal picks the optimal pathways from pairs sorted by key.
//
// Per pair the shortest pathway is the direct edge when one exists,
// otherwise the entry with the smallest weight (first wins on ties). The
// highest-similarity pathway maximizes the weakest edge similarity and is
// kept only when that similarity is positive. Most-common paths count
// every entry across all pairs and keep the top n by frequency, then path
// string.
func SelectOptimal(pairs []Pair, topCommon int) OptimalPathways {
	out := OptimalPathways{
		ShortestPaths:          make([]ShortestPathway, 0, len(pairs)),
		HighestSimilarityPaths: make([]SimilarPathway, 0, len(pairs)),
		MostCommonPaths:        make([]CommonPathway, 0),
	}

	type agg struct {
		count     int
		weightSum float64
		simSum    float64
		simCount  int
	}
	common := make(map[string]*agg)

	for _, p := range pairs {
		if len(p.Entries) == 0 {
			continue
		}

		if best, ok := shortestEntry(p); ok {
			out.ShortestPaths = append(out.ShortestPaths, ShortestPathway{
				Pair:   p.Key,
				Path:   best.Path,
				Weight: best.Weight,
				Hops:   best.Length,
			})
		}

		bestSim := -1
		for i, e := range p.Entries {
			if bestSim < 0 || e.Similarity > p.Entries[bestSim].Similarity {
				bestSim = i
			}
		}
		if e := p.Entries[bestSim]; e.Similarity > 0 {
			out.HighestSimilarityPaths = append(out.HighestSimilarityPaths, SimilarPathway{
				Pair:       p.Key,
				Path:       e.Path,
				Similarity: e.Similarity,
				Hops:       e.Length,
			})
		}

		for _, e := range p.Entries {
			key := e.String()
			a, ok := common[key]
			if !ok {
				a = &agg{}
				common[key] = a
			}
			a.count++
			a.weightSum += e.Weight
			if e.Similarity > 0 {
				a.simSum += e.Similarity
				a.simCount++
			}
		}
	}

	for path, a := range common {
		cp := CommonPathway{
			Path:      path,
			Frequency: a.count,
			AvgWeight: a.weightSum / float64(a.count),
		}
		if a.simCount > 0 {
			cp.AvgSimilarity = a.simSum / float64(a.simCount)
		}
		out.MostCommonPaths = append(out.MostCommonPaths, cp)
	}
	sort.Slice(out.MostCommonPaths, func(i, j int) bool {
		a, b := out.MostCommonPaths[i], out.MostCommonPaths[j]
		if a.Frequency != b.Frequency {
			return a.Frequency > b.Frequency
		}
		return a.Path < b.Path
	})
	if topCommon > 0 && len(out.MostCommonPaths) > topCommon {
		out.MostCommonPaths = out.MostCommonPaths[:topCommon]
	}
	return out
}

func shortestEntry(p Pair) (Entry, bool) {
	if len(p.Entries) == 0 {
		return Entry{}, false
	}
	if p.HasDirect {
		for _, e := range p.Entries {
			if e.Algorithm == AlgorithmDirect {
				return e, true
			}
		}
	}
	best := p.Entries[0]
	for _, e := range p.Entries[1:] {
		if e.Weight < best.Weight {
			best = e
		}
	}
	return best, true
}
