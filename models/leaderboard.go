package models

// LeaderboardExtractionEntry is one row proposed by the screenshot extractor.
// Transient — returned for administrator review, never persisted by this service.
type LeaderboardExtractionEntry struct {
	Rank   int    `json:"rank"`
	Name   string `json:"name"`
	Points int    `json:"points"`

	// Best-effort reconciliation against the mirrored user table. Suggestions
	// only; confirming a match stays a manual step downstream.
	MatchedUserID   string `json:"matched_user_id,omitempty"`
	MatchedUsername string `json:"matched_username,omitempty"`
}
