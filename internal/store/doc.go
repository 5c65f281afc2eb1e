// Package store provides the durable state for granolad: extracted
// action items, processed-meeting markers, and user settings.
//
// State lives in a single JSON file that is read fully into memory on
// open and rewritten in full on every mutation. Item volume is small
// (one local user's meetings), so simplicity wins over write
// amplification. The store assumes a single owning process; in-process
// callers are serialized with a mutex.
package store
