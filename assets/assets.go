// Package assets embeds the SQL schema migrations shipped with the binary.
package assets

import (
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the names of the embedded migration files in apply order.
func Migrations() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, migrationsDir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	return names, nil
}

// Migration returns the SQL text of the named migration.
func Migration(name string) (string, error) {
	content, err := migrationsFS.ReadFile(path.Join(migrationsDir, name))
	if err != nil {
		return "", err
	}
	return string(content), nil
}
