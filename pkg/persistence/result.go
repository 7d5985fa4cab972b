package persistence

// QueryRequest carries caller query parameters. Start is 1-based; values
// <= 0 for Start or Limit mean "unset".
type QueryRequest struct {
	Filter string
	Sort   string
	Start  int
	Limit  int
}

// QueryResult is one page of client objects.
type QueryResult[C any] struct {
	Items         []C   `json:"items"`
	ResponseCount int   `json:"responseCount"`
	TotalCount    int64 `json:"totalCount"`
	// Start is the 1-based position of the first item, as presented to the caller.
	Start int `json:"start"`
}
