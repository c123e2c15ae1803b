// Package logging configures structured JSON logging for lockerindex.
//
// Logs go to a size-rotated file under ~/.lockerindex/logs/ and, outside
// of MCP serve mode, are mirrored to stderr. The serve command never writes
// to stderr or stdout because stdout carries the MCP protocol stream.
package logging
