package entity

import "time"

// Post represents a published or to-be-published unit of content.
type Post struct {
	// ID is the server-assigned content identifier (tweet id, AT-URI, URN)
	ID string

	// ChannelCode identifies the channel the post belongs to
	ChannelCode string

	// Text is the plain post text, including any links and hashtags
	Text string

	// CID is the content hash of the record, when the protocol provides one
	CID string

	// CreatedAt is when the provider accepted the post
	CreatedAt time.Time
}

// DeleteStatus describes how a delete request concluded.
type DeleteStatus int

const (
	// DeleteStatusDeleted means the provider removed the post
	DeleteStatusDeleted DeleteStatus = iota

	// DeleteStatusAlreadyGone means the provider reported the post as not
	// found; callers treat this as success (idempotent delete)
	DeleteStatusAlreadyGone
)

// DeleteOutcome is the typed result of a delete operation. An already-deleted
// post yields AlreadyGone with a stub Post carrying only the requested id,
// rather than an error.
type DeleteOutcome struct {
	Status DeleteStatus
	Post   *Post
}
