package entity

// Message statuses. Transitions only move forward; a status never
// regresses once it reached read.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// StatusRank maps a status to its position in the sent/delivered/read
// progression. Unknown statuses rank below sent so a store echo can always
// repair them.
func StatusRank(status string) int {
	switch status {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Message is a single chat message. Timestamp is unix milliseconds and is
// zero only transiently, before the server assigns it; ordering treats a
// zero timestamp as newest.
type Message struct {
	Id        string `bson:"_id" json:"id"`
	ChatId    string `bson:"chatId" json:"chatId"`
	SenderId  string `bson:"senderId" json:"senderId"`
	Text      string `bson:"text" json:"text"`
	Timestamp int64  `bson:"timestamp" json:"timestamp"`
	Status    string `bson:"status" json:"status"`
}

func (m Message) EntityID() string {
	return m.Id
}

// Before reports whether m orders strictly before other in a chat's
// ascending timeline. Zero timestamps sort last; ties are left equal so
// the reconciler keeps insertion order.
func (m Message) Before(other Message) bool {
	if m.Timestamp == other.Timestamp {
		return false
	}
	if m.Timestamp == 0 {
		return false
	}
	if other.Timestamp == 0 {
		return true
	}
	return m.Timestamp < other.Timestamp
}

// DeletionMarker hides one message for one user ("delete for me").
// Existence-only: it carries no payload, is only ever created by the user
// it names, and is never removed. The composite id makes re-creation a
// no-op upsert.
type DeletionMarker struct {
	Id        string `bson:"_id" json:"id"`
	ChatId    string `bson:"chatId" json:"chatId"`
	MessageId string `bson:"messageId" json:"messageId"`
	UserId    string `bson:"userId" json:"userId"`
}

func (d DeletionMarker) EntityID() string {
	return d.Id
}

// MarkerID builds the composite marker document id.
func MarkerID(messageId, userId string) string {
	return messageId + ":" + userId
}
