package db

import "embed"

// MigrationFS embeds the SQL migrations for session entries, onboarding flows and gateway events.
// Applied by the migrate runner (cmd/migrate).
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
