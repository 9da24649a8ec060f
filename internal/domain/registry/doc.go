// Package registry fetches extension catalogs, manifests and payloads.
//
// A Source is where bytes come from: the HTTP registry (HTTPSource) or a
// local directory tree (DirSource) used during development. The Loader sits
// in front of a Source and is the only thing the lifecycle talks to. It
// validates manifests, rejects host-incompatible versions, verifies payload
// integrity, sniffs payloads against the declared kind and caches results.
//
// Every failure the Loader returns is classified faults.FetchFailure.
package registry
