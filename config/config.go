package config

import "time"

const (
	BuildVersion = "v0.1.0-BUILD_VERSION"

	QueueCapacity     = 10
	ReadBufferSize    = 1024
	ListenBacklog     = 1
	MessageMaxPayload = 255

	DefaultPort     = 9100
	DefaultAddress  = "127.0.0.1"
	DefaultLogLevel = 2

	JournalPageSize = 100
	ShutdownTimeout = 3 * time.Second
)
