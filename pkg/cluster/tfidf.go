package cluster

import (
	"math"
	"sort"
	"strings"

	"github.com/soundprediction/likeness/pkg/shingle"
)

// sparseVector is a row of the TF-IDF matrix with indices in ascending order.
type sparseVector struct {
	idx []int
	val []float64
}

func (v sparseVector) dot(dense []float64) float64 {
	s := 0.0
	for i, j := range v.idx {
		s += v.val[i] * dense[j]
	}
	return s
}

func (v sparseVector) squaredNorm() float64 {
	s := 0.0
	for _, x := range v.val {
		s += x * x
	}
	return s
}

// charNGrams returns the character n-grams of text for every n in [minN, maxN],
// lowercased with whitespace runs collapsed.
func charNGrams(text string, minN, maxN int) []string {
	runes := []rune(strings.ToLower(shingle.Collapse(text)))
	var grams []string
	for n := minN; n <= maxN; n++ {
		for i := 0; i+n <= len(runes); i++ {
			grams = append(grams, string(runes[i:i+n]))
		}
	}
	return grams
}

// vectorize builds L2-normalized TF-IDF rows with smooth idf
// ln((1+n)/(1+df)) + 1. Vocabulary indices follow sorted term order so the
// matrix does not depend on map iteration.
func vectorize(texts []string, minN, maxN int) ([]sparseVector, int) {
	counts := make([]map[string]int, len(texts))
	df := make(map[string]int)
	for i, t := range texts {
		c := make(map[string]int)
		for _, g := range charNGrams(t, minN, maxN) {
			c[g]++
		}
		for g := range c {
			df[g]++
		}
		counts[i] = c
	}

	terms := make([]string, 0, len(df))
	for g := range df {
		terms = append(terms, g)
	}
	sort.Strings(terms)
	vocab := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	n := float64(len(texts))
	for i, g := range terms {
		vocab[g] = i
		idf[i] = math.Log((1+n)/(1+float64(df[g]))) + 1
	}

	rows := make([]sparseVector, len(texts))
	for i, c := range counts {
		idx := make([]int, 0, len(c))
		for g := range c {
			idx = append(idx, vocab[g])
		}
		sort.Ints(idx)
		val := make([]float64, len(idx))
		norm := 0.0
		for k, j := range idx {
			val[k] = float64(c[terms[j]]) * idf[j]
			norm += val[k] * val[k]
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for k := range val {
				val[k] /= norm
			}
		}
		rows[i] = sparseVector{idx: idx, val: val}
	}
	return rows, len(terms)
}
