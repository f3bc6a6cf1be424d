package collab

// CloseCode is sent in the websocket close frame so clients can branch on
// why a session ended.
type CloseCode int

const (
	CloseNormal          CloseCode = 1000
	CloseGoingAway       CloseCode = 1001
	CloseUnauthenticated CloseCode = 4401
	CloseForbidden       CloseCode = 4403
	CloseProjectNotFound CloseCode = 4404
	CloseSuperseded      CloseCode = 4409
	CloseInternalError   CloseCode = 4500
)

// Conn is the duplex channel a gateway drives. ReadMessage is only called
// from the gateway's own goroutine; WriteMessage and Close may be called
// from any goroutine and must be safe for that.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close(code CloseCode, reason string) error
}
