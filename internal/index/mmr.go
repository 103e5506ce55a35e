package index

import (
	"math"

	"resume-agent-go/internal/storage"
)

// MaximalMarginalRelevance 从候选向量中选出 k 个，兼顾与查询的相关性和彼此的差异。
// lambda=1 只看相关性，lambda=0 只看差异性。返回候选下标。
func MaximalMarginalRelevance(query []float64, candidates [][]float64, lambda float64, k int) []int {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	relevance := make([]float64, len(candidates))
	best := 0
	for i, c := range candidates {
		relevance[i] = storage.CosineSimilarity(query, c)
		if relevance[i] > relevance[best] {
			best = i
		}
	}

	selected := []int{best}
	chosen := map[int]bool{best: true}
	for len(selected) < k {
		next, nextScore := -1, math.Inf(-1)
		for i, c := range candidates {
			if chosen[i] {
				continue
			}
			redundancy := math.Inf(-1)
			for _, j := range selected {
				if s := storage.CosineSimilarity(c, candidates[j]); s > redundancy {
					redundancy = s
				}
			}
			score := lambda*relevance[i] - (1-lambda)*redundancy
			if score > nextScore {
				next, nextScore = i, score
			}
		}
		if next < 0 {
			break
		}
		selected = append(selected, next)
		chosen[next] = true
	}
	return selected
}
