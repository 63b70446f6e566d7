// Package migrations embeds the SQL schema migrations for every supported database.
package migrations

import "embed"

// FS holds one directory of migrations per database: postgres/ and sqlite/.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
