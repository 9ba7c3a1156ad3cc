package data

import (
	_ "embed"
)

// Seed holds the reference table defaults
//
//go:embed seed.yaml
var Seed []byte
