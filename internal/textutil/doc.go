// Package textutil provides shared text helpers: content fingerprinting for
// cache and dedup keys, CJK-aware token estimation, and token sanitization.
package textutil
