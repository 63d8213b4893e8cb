package publish

import "errors"

var (
	// ErrNoChannels is returned when a publish run selects no channels.
	ErrNoChannels = errors.New("no channels selected for publishing")

	// ErrEmptyText is returned when the post text is empty.
	ErrEmptyText = errors.New("post text must not be empty")
)
