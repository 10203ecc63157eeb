// Package archive extracts packaged addons and locates their metadata files.
//
// Extraction always happens in a scratch directory created next to the
// archive; the scratch tree is removed when Extract returns, whatever the outcome.
package archive
