// Package cache implements the tiered read-through, write-through cache used
// to memoize extraction results. Reads walk the tiers fastest-first (memory,
// persistent store, remote); a hit at a slower tier is promoted into every
// faster tier with a freshly computed TTL. Entries expire lazily and the
// memory tier evicts the least-recently-hit entry on capacity overflow.
package cache
