package domain

// PendingFriendRequest is an unanswered friend request owned by the
// persistence collaborator. The relay only re-delivers it when its
// target comes back online.
type PendingFriendRequest struct {
	ID   int64
	From Identity
}

// SearchHit is one full-text match over a chat's message history.
type SearchHit struct {
	MessageID string
	Content   string
	Score     float64
}
