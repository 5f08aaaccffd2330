// Package configs provides the embedded configuration template for annserve.
//
// The template is written by `annserve init` and documents every key that
// internal/config understands. Edit annserve.example.yaml and rebuild to
// change it.
package configs

import _ "embed"

// ProjectConfigTemplate is the annotated annserve.yaml written by
// `annserve init`.
//
//go:embed annserve.example.yaml
var ProjectConfigTemplate string
