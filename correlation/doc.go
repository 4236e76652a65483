// Package correlation creates and propagates correlation contexts across
// concurrent call chains so every log line and metric of one logical
// operation can be joined, in-process and across service boundaries.
//
// The active context rides on context.Context, which gives the dynamic
// scoping the pattern needs: it follows the logical call chain through
// goroutines and suspension points, is inherited by child work, and is
// invisible to unrelated concurrent chains. The Tracker is an explicitly
// constructed service meant to be dependency-injected; there is no package
// global.
package correlation
