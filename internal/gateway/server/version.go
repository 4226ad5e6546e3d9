package server

const (
	// Version is the gateway server version.
	Version = "0.1.0"
	// ApiVersion is the HTTP API version.
	ApiVersion = "0.1.0-alpha.1"
)
