package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID      int64   `json:"id"`
	Kind    string  `json:"type"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterKind string // course, chapter or lesson; empty = all
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full text search over content records.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ContentRecord is the data indexed for one content node.
type ContentRecord struct {
	ID          int64    `json:"id"`
	Kind        string   `json:"type"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}
