// Package repospanner holds the types shared by the repoSpanner remote-storage
// client: object identifiers, payload digests and the error taxonomy.
//
// The client lets a local git repository read its references and loose
// objects from a repoSpanner cluster over mutually authenticated HTTPS. The
// remote store is read-only from the client's perspective.
package repospanner
