package addon

import "bytes"

// declarationPrefix opens an XML declaration such as <?xml version='1.0'?>.
var declarationPrefix = []byte("<?xml") //nolint:gochecknoglobals // Read-only byte prefix.

// IsDeclaration reports whether a raw fragment line is an XML declaration.
// Only the exact byte prefix is checked: no trimming, no BOM handling, no parsing.
// The catalog carries its own declaration, so fragment declarations are dropped.
func IsDeclaration(line []byte) bool {
	return bytes.HasPrefix(line, declarationPrefix)
}

// KeepLine is the filter applied to every fragment line before it is appended to the catalog.
func KeepLine(line []byte) bool {
	return !IsDeclaration(line)
}
