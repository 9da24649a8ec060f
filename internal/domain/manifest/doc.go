// Package manifest defines the extension manifest, the permission vocabulary,
// and everything needed to trust a manifest before the runtime acts on it:
// struct validation, semver host-compatibility checks, payload integrity
// digests and decoding from the JSON, YAML and TOML files a local catalog may
// contain.
//
// Manifests are immutable once fetched for a given version. Callers receive
// values, never shared pointers into a cache.
package manifest
