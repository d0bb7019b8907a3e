package search

import (
	"sort"
	"strconv"

	types "github.com/yungbote/docsearch-backend/internal/domain"
)

// FacetBucket counts one value of one dimension. An empty Value groups
// the documents that have no value for the dimension, so every
// dimension sums to the filtered total.
type FacetBucket struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

type Facets struct {
	PrimaryCategory []FacetBucket `json:"primary_category"`
	Subcategory     []FacetBucket `json:"subcategory"`
	DocumentType    []FacetBucket `json:"document_type"`
	Year            []FacetBucket `json:"year"`
	Location        []FacetBucket `json:"location"`
}

func computeFacets(cards []types.SearchCard) Facets {
	primary := map[string]int{}
	sub := map[string]int{}
	docType := map[string]int{}
	year := map[string]int{}
	location := map[string]int{}
	for _, c := range cards {
		primary[c.PrimaryCategory]++
		sub[c.Subcategory]++
		docType[c.DocumentType]++
		y := ""
		if c.Year != nil {
			y = strconv.Itoa(*c.Year)
		}
		year[y]++
		location[c.Location]++
	}
	return Facets{
		PrimaryCategory: buckets(primary),
		Subcategory:     buckets(sub),
		DocumentType:    buckets(docType),
		Year:            buckets(year),
		Location:        buckets(location),
	}
}

// buckets orders by count desc then value asc; the empty bucket is last.
func buckets(m map[string]int) []FacetBucket {
	out := make([]FacetBucket, 0, len(m))
	for v, n := range m {
		out = append(out, FacetBucket{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Value == "") != (b.Value == "") {
			return b.Value == ""
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Value < b.Value
	})
	return out
}

// Total sums one dimension.
func Total(b []FacetBucket) int {
	n := 0
	for _, x := range b {
		n += x.Count
	}
	return n
}
