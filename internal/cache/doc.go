// Package cache defines the named, versioned stores that hold cached responses
// for the kiosk. A store maps an asset Key (scheme://host/path?query) to a
// stored response: status, headers and the payload bytes. Stores live under a
// Backend; the on-disk backend keeps one directory per store name on a
// go-billy filesystem (osfs in production, memfs in tests) and writes every
// entry with temp file + rename so readers never observe partial payloads.
// Store identity (open/delete) is owned by the registry package; strategies
// and the preload coordinator only write into already-open stores.
package cache
