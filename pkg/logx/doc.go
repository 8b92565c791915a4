// Package logx wraps zerolog behind a small Field-based API so the rest of
// the codebase does not import zerolog directly. The Service supports
// applying a new sink/level configuration at runtime.
package logx
