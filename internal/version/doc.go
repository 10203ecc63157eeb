// Package version reports which build of addons-generator is running.
//
// Version, Commit and BuildTime may be set with -ldflags -X. Without a
// Commit the revision stamped by the Go toolchain is used instead.
package version
