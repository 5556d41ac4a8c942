package storage

import "posprint/internal/ports"

// Provider is the archive contract used by the API.
// It is an alias to ports.StorageProvider to keep call-sites simple.
type Provider = ports.StorageProvider
