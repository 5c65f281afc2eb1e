// Package granola reads the Granola note-taking app's local cache file
// and normalizes it into meeting records.
//
// The cache format is externally controlled, undocumented, and has
// changed shape across app versions, so the reader applies an ordered
// set of location probes instead of a fixed schema. Any probe may
// legitimately find nothing; a missing or unparseable file yields an
// empty result, never an error.
package granola
