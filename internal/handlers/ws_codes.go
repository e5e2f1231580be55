// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the game room socket.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Provided auth token was invalid or expired.
	InvalidUserIDError    = 3002 // Token subject does not resolve to a user.
	InvalidRoomIDError    = 3003 // Room id in the WS URL is malformed or unknown.
)
