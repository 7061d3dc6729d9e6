package igsession

// ResultKind classifies the outcome of a single post fetch (spec §4.4).
type ResultKind string

const (
	ResultOK          ResultKind = "ok"
	ResultNotFound    ResultKind = "not_found"
	ResultRateLimited ResultKind = "rate_limited"
	ResultError       ResultKind = "error"
)

// ErrorReason sub-classifies a ResultError.
type ErrorReason string

const (
	ReasonHTTPStatus  ErrorReason = "http_status"  // non-200, non-404, non-429
	ReasonTransport   ErrorReason = "transport"    // network/transport error
	ReasonInvalidJSON ErrorReason = "invalid_json" // the checkpoint signal
)

// NormalizedMedia is one asset extracted from a fetch result, in order.
type NormalizedMedia struct {
	URL    string
	Type   string // "image" or "video"
	Width  int
	Height int
}

// NormalizedPost is the platform-agnostic shape both GraphQL and REST
// responses are reduced to.
type NormalizedPost struct {
	Shortcode    string
	PK           string
	Username     string
	DisplayName  string
	ProfileURL   string
	Caption      string
	LikeCount    int
	CommentCount int
	TakenAt      int64 // Unix seconds
	Media        []NormalizedMedia
}

// FetchResult is the outcome of fetching one post by shortcode.
type FetchResult struct {
	Kind       ResultKind
	Reason     ErrorReason
	Message    string
	StatusCode int
	Post       *NormalizedPost
}
