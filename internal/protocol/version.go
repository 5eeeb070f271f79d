package protocol

// Version constants for compatibility checking. A client sends its version
// in the ConnectionRequest; incompatible peers are disconnected.
const (
	ProtocolVersion = 1
	MinVersion      = 1
)

// Compatible checks if two versions can communicate.
func Compatible(local, remote int) bool {
	return remote >= MinVersion && local >= MinVersion
}
