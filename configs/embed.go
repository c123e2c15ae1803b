// Package configs provides embedded configuration data for lockerindex.
//
// Files are embedded at build time using Go's //go:embed directive so every
// distribution carries the same defaults:
//   - mappings.json: the per-type field-mapping table used by the flattener
//   - config.example.yaml: the template written by `lockerindex config init`
//
// To modify them, edit the files in this directory and rebuild.
package configs

import _ "embed"

// FieldMappings is the default type -> template table, declared in the same
// nested JSON shape the records use. Key order is significant: it is the
// order tokens are emitted in.
//
//go:embed mappings.json
var FieldMappings []byte

// ConfigTemplate is the template for the user-level configuration file.
// Created by: `lockerindex config init`.
//
//go:embed config.example.yaml
var ConfigTemplate string
