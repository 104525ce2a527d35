package model

type ConnectionStatus string

const (
	ConnUninitialized     ConnectionStatus = "uninitialized"
	ConnAwaitingHandshake ConnectionStatus = "awaiting_handshake"
	ConnConnected         ConnectionStatus = "connected"
	ConnReconnecting      ConnectionStatus = "reconnecting"
	ConnDisconnected      ConnectionStatus = "disconnected"
	ConnError             ConnectionStatus = "error"
)
