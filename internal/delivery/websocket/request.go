package websocket

// Command is the envelope for every client-to-server frame. Type selects
// which of the optional fields matter.
type Command struct {
	Type      string `json:"type"`
	ChatId    string `json:"chatId,omitempty"`
	MessageId string `json:"messageId,omitempty"`
	Text      string `json:"text,omitempty"`
	ForAll    bool   `json:"forAll,omitempty"`
	Tab       string `json:"tab,omitempty"`
	Query     string `json:"query,omitempty"`
}

const (
	CmdOpenChat  = "open_chat"
	CmdCloseChat = "close_chat"
	CmdSend      = "send"
	CmdReadAck   = "read_ack"
	CmdDelete    = "delete"
	CmdSnapshot  = "snapshot"
)
