package scenario

import _ "embed"

// ExampleYAML is a small runnable scenario written by `justact init`.
//
//go:embed example.yaml
var ExampleYAML string
