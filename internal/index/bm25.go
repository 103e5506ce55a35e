package index

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"resume-agent-go/internal/types"
)

// Okapi BM25 参数
const (
	BM25K1      = 1.5
	BM25B       = 0.75
	BM25Epsilon = 0.25
)

// BM25 基于分块文本的词法索引
type BM25 struct {
	docs      []types.Section
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

// Tokenize 转小写后按非字母数字字符切分
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// NewBM25 构建索引。idf 为负的词用平均 idf 的 ε 倍代替
func NewBM25(docs []types.Section) *BM25 {
	idx := &BM25{
		docs:      docs,
		termFreqs: make([]map[string]int, len(docs)),
		docLens:   make([]int, len(docs)),
		idf:       make(map[string]float64),
	}
	docFreq := make(map[string]int)
	total := 0
	for i, d := range docs {
		tf := make(map[string]int)
		tokens := Tokenize(d.Text)
		for _, tok := range tokens {
			tf[tok]++
		}
		for tok := range tf {
			docFreq[tok]++
		}
		idx.termFreqs[i] = tf
		idx.docLens[i] = len(tokens)
		total += len(tokens)
	}
	if len(docs) == 0 {
		return idx
	}
	idx.avgDocLen = float64(total) / float64(len(docs))

	n := float64(len(docs))
	var idfSum float64
	var negative []string
	for tok, df := range docFreq {
		v := math.Log(n-float64(df)+0.5) - math.Log(float64(df)+0.5)
		idx.idf[tok] = v
		idfSum += v
		if v < 0 {
			negative = append(negative, tok)
		}
	}
	floor := BM25Epsilon * idfSum / float64(len(docFreq))
	for _, tok := range negative {
		idx.idf[tok] = floor
	}
	return idx
}

// Len 文档数
func (b *BM25) Len() int { return len(b.docs) }

// Scores 返回每个文档对查询的得分
func (b *BM25) Scores(query string) []float64 {
	scores := make([]float64, len(b.docs))
	if b.avgDocLen == 0 {
		return scores
	}
	for _, q := range Tokenize(query) {
		idf, ok := b.idf[q]
		if !ok {
			continue
		}
		for i, tf := range b.termFreqs {
			f := float64(tf[q])
			if f == 0 {
				continue
			}
			norm := 1 - BM25B + BM25B*float64(b.docLens[i])/b.avgDocLen
			scores[i] += idf * f * (BM25K1 + 1) / (f + BM25K1*norm)
		}
	}
	return scores
}

// TopK 按得分降序返回 k 个文档，同分保持原顺序
func (b *BM25) TopK(query string, k int) []types.Section {
	if len(b.docs) == 0 || k <= 0 {
		return nil
	}
	scores := b.Scores(query)
	order := make([]int, len(b.docs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] > scores[order[j]] })
	if k > len(order) {
		k = len(order)
	}
	out := make([]types.Section, k)
	for i := 0; i < k; i++ {
		out[i] = b.docs[order[i]]
	}
	return out
}
