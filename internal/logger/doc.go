// Package logger provides a small wrapper around zap to offer:
//   - a global sugared console logger writing progress lines to stdout,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// Every generator step receives a context and logs through the logger it carries.
package logger
