// Package store provides the key-value persistence consumed by the game
// state for device identity, namespaced the way the device's non-volatile
// storage is.
package store

// Store reads and writes scalar and string values under a namespace.
type Store interface {
	ReadStr(ns, key string) (string, bool)
	WriteStr(ns, key, value string) error
	ReadUint(ns, key string) (uint64, bool)
	WriteUint(ns, key string, value uint64) error
	EraseNamespace(ns string) error
}
