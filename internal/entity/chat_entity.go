package entity

// Chat is the denormalized chat document as stored remotely. The engine
// holds a read-through projection of it; the store stays the source of
// truth and every local mutation is eventually overwritten by the next
// change event for the same id.
type Chat struct {
	Id              string           `bson:"_id" json:"id"`
	Participants    []string         `bson:"participants" json:"participants"`
	IsGroup         bool             `bson:"isGroup" json:"isGroup"`
	GroupName       string           `bson:"groupName,omitempty" json:"groupName,omitempty"`
	LastMessageText string           `bson:"lastMessageText" json:"lastMessageText"`
	LastMessageTime int64            `bson:"lastMessageTime" json:"lastMessageTime"`
	Favourite       []string         `bson:"favourite" json:"favourite"`
	UnreadCounts    map[string]int64 `bson:"unreadCounts" json:"unreadCounts"`
}

func (c Chat) EntityID() string {
	return c.Id
}

// HasParticipant reports whether userId belongs to the chat.
func (c Chat) HasParticipant(userId string) bool {
	for _, p := range c.Participants {
		if p == userId {
			return true
		}
	}
	return false
}

// IsFavouriteFor reports whether userId marked the chat as favourite.
func (c Chat) IsFavouriteFor(userId string) bool {
	for _, f := range c.Favourite {
		if f == userId {
			return true
		}
	}
	return false
}

// UnreadFor returns userId's unread counter, defaulting to zero.
func (c Chat) UnreadFor(userId string) int64 {
	if c.UnreadCounts == nil {
		return 0
	}
	return c.UnreadCounts[userId]
}

// Counterpart returns the other participant of a direct chat. Empty for
// group chats or when userId is not a participant.
func (c Chat) Counterpart(userId string) string {
	if c.IsGroup {
		return ""
	}
	for _, p := range c.Participants {
		if p != userId {
			return p
		}
	}
	return ""
}

// Summary is a chat's last-message denormalization. A zero Time means
// "no message": either the chat never had one or its tail is hidden or
// gone for the viewer in question.
type Summary struct {
	Text string `json:"text"`
	Time int64  `json:"time"`
}

// ChatView is the per-viewer projection handed to the presentation layer:
// the shared chat document plus everything that only makes sense relative
// to one viewer (summary overlay, unread badge, favourite flag, resolved
// display name).
type ChatView struct {
	Chat        Chat    `json:"chat"`
	DisplayName string  `json:"displayName"`
	Summary     Summary `json:"summary"`
	Unread      int64   `json:"unread"`
	Favourite   bool    `json:"favourite"`
}

func (v ChatView) EntityID() string {
	return v.Chat.Id
}
