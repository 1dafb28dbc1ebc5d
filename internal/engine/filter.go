package engine

import (
	"strings"

	"chatsync/internal/entity"
)

// Tab scopes the chat list.
type Tab string

const (
	TabAll        Tab = "all"
	TabGroups     Tab = "groups"
	TabFavourites Tab = "favourites"
)

// ParseTab maps a wire value to a Tab, defaulting to All.
func ParseTab(s string) Tab {
	switch Tab(strings.ToLower(s)) {
	case TabGroups:
		return TabGroups
	case TabFavourites:
		return TabFavourites
	default:
		return TabAll
	}
}

// FilterChats projects a reconciled chat list into the tab- and
// search-scoped subset for viewerId. Pure and stateless; the input order
// is preserved. Search matches case-insensitive substrings of the group
// name for groups and of the resolved counterpart name for direct chats
// (both live in DisplayName); an empty query matches everything.
func FilterChats(chats []entity.ChatView, tab Tab, query, viewerId string) []entity.ChatView {
	query = strings.ToLower(strings.TrimSpace(query))

	out := make([]entity.ChatView, 0, len(chats))
	for _, v := range chats {
		switch tab {
		case TabGroups:
			if !v.Chat.IsGroup {
				continue
			}
		case TabFavourites:
			if !v.Chat.IsFavouriteFor(viewerId) {
				continue
			}
		}

		if query != "" && !strings.Contains(strings.ToLower(v.DisplayName), query) {
			continue
		}

		out = append(out, v)
	}
	return out
}
