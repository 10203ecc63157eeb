// Package catalog implements persistence for the aggregate addons catalog.
//
// The Document owns the catalog file at a fixed path: Begin truncates it and
// writes the declaration and root element, AppendFragment copies a metadata
// file without its declaration line, and Finish closes the root element.
package catalog
