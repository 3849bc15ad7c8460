// Package migrations embeds the schema files applied by the migrate
// command.
package migrations

import "embed"

// FS holds the numbered .sql migration files.
//
//go:embed *.sql
var FS embed.FS

// Files lists the migrations in apply order.
var Files = []string{
	"001_create_quests.sql",
	"002_create_claims.sql",
	"003_create_otw_sessions.sql",
	"004_create_quest_events.sql",
	"005_create_ghost_strikes.sql",
	"006_create_worker_profiles.sql",
}
