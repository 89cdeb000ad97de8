package db

// KNNQuery is the input for vector similarity search.
// Prefilter is an FT.SEARCH query fragment applied before the KNN clause
// ("*" semantics when empty); candidates outside it never reach scoring.
type KNNQuery struct {
	IndexName    string
	Prefilter    string
	Vector       []float32
	K            int
	ReturnFields []string
}

// TextQuery is the input for BM25 text search. Prefilter as in KNNQuery.
type TextQuery struct {
	IndexName    string
	Query        string
	Prefilter    string
	TopK         int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
