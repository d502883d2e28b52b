// Package textutil sanitizes metadata-derived names into filesystem-safe
// path segments and formats the canonical series/season/episode names used
// by the plan builder. Sanitization is deterministic and OS-independent:
// the same input always yields the same segment or the same rejection.
package textutil
