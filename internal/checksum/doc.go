// Package checksum computes file digests and manages sidecar checksum files.
//
// A sidecar lives next to the file it describes, at the file path plus a fixed
// suffix (".md5" by default), and holds the lowercase hex digest and a newline.
package checksum
