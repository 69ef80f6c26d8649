package sql

import _ "embed"

// Schema creates the tasks table when it does not exist yet.
//
//go:embed schema.sql
var Schema string
