package domain

// Query progress stages published on the live channel.
const (
	StageSearching = "searching"
	StageRanking   = "ranking"
	StageDone      = "done"
)

// LiveEvent is a progress update for one in-flight query.
type LiveEvent struct {
	RequestID string `json:"request_id"`
	Stage     string `json:"stage"`
	Message   string `json:"message"`
}
