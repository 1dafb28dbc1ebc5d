package ws

// IHub routes engine notifications to connected clients, keyed by user.
// The in-memory hub serves a single server; the Redis hub fans out to
// clients connected to other instances.
type IHub interface {
	Run()
	RegisterClient(client *UserClient)
	UnregisterClient(client *UserClient)
	SendToUser(userId string, payload []byte)
	ClientCount() int
	SetOnClientUnregister(callback func(client *UserClient))
}
