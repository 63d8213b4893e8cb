package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"socialpub/internal/domain/entity"
)

// Roster is the set of channels the publisher can post to, loaded from the
// YAML channel roster file:
//
//	channels:
//	  - provider: bluesky
//	    code: bsky-main
//	    name: Main Bluesky Account
//	  - provider: twitter
//	    code: tw-main
//	    name: Main Twitter Account
type Roster struct {
	Channels []entity.Channel
}

type rosterFile struct {
	Channels []struct {
		Provider string `yaml:"provider"`
		Code     string `yaml:"code"`
		Name     string `yaml:"name"`
	} `yaml:"channels"`
}

// LoadRoster reads and validates the channel roster at path. Every channel
// must pass entity validation and channel codes must be unique, since the
// code keys the channel's credential file.
func LoadRoster(path string) (*Roster, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channel roster %s: %w", path, err)
	}

	var file rosterFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse channel roster %s: %w", path, err)
	}
	if len(file.Channels) == 0 {
		return nil, fmt.Errorf("channel roster %s declares no channels", path)
	}

	seen := make(map[string]bool, len(file.Channels))
	channels := make([]entity.Channel, 0, len(file.Channels))
	for i, c := range file.Channels {
		channel := entity.Channel{
			Provider: entity.ProviderKind(c.Provider),
			Code:     c.Code,
			Name:     c.Name,
		}
		if err := channel.Validate(); err != nil {
			return nil, fmt.Errorf("channel roster %s entry %d: %w", path, i, err)
		}
		if seen[channel.Code] {
			return nil, fmt.Errorf("channel roster %s: duplicate channel code %q", path, channel.Code)
		}
		seen[channel.Code] = true
		channels = append(channels, channel)
	}

	return &Roster{Channels: channels}, nil
}

// Find returns the channel with the given code, or entity.ErrNotFound.
func (r *Roster) Find(code string) (*entity.Channel, error) {
	for i := range r.Channels {
		if r.Channels[i].Code == code {
			return &r.Channels[i], nil
		}
	}
	return nil, fmt.Errorf("channel %q: %w", code, entity.ErrNotFound)
}

// Select returns the channels with the given codes, in the given order.
// An empty code list selects the whole roster.
func (r *Roster) Select(codes []string) ([]entity.Channel, error) {
	if len(codes) == 0 {
		return r.Channels, nil
	}

	selected := make([]entity.Channel, 0, len(codes))
	for _, code := range codes {
		channel, err := r.Find(code)
		if err != nil {
			return nil, err
		}
		selected = append(selected, *channel)
	}
	return selected, nil
}
