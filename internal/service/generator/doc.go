// Package generator builds the addons catalog and the checksum sidecars.
//
// A run writes the catalog header, walks every directory below the root,
// extracts packaged addons to collect their metadata fragments, writes a
// checksum sidecar for every file that lacks one, then closes the catalog and
// writes its own checksum. Per-item failures are recorded and logged; the run
// goes on with the next file.
package generator
