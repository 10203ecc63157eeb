// Package config defines the generator settings and provides helpers to
// load, validate and save them in YAML format.
//
// A Config is an explicit value: the repository root, the catalog location and
// the names the generator matches are resolved once and handed to every step.
package config
