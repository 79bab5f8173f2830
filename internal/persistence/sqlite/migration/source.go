package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// migrationFilePattern matches {version}_{description}.sql.
var migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

// Load reads every migration file in dir, ordered by version.
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migration directory %s: %w", dir, err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		filePath := path.Join(dir, entry.Name())
		migration, err := parseFile(fsys, filePath)
		if err != nil {
			return nil, err
		}
		if existing, dup := seen[migration.Version]; dup {
			return nil, newMigrationError(migration, "check duplicates",
				fmt.Errorf("%w: also defined in %s", ErrDuplicateVersion, existing))
		}
		seen[migration.Version] = filePath
		migrations = append(migrations, migration)
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

func parseFile(fsys fs.FS, filePath string) (Migration, error) {
	matches := migrationFilePattern.FindStringSubmatch(path.Base(filePath))
	if matches == nil {
		return Migration{}, &MigrationError{FilePath: filePath, Operation: "validate filename",
			Err: fmt.Errorf("%w: expected {version}_{description}.sql", ErrInvalidMigrationFile)}
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil || version <= 0 {
		return Migration{}, &MigrationError{FilePath: filePath, Operation: "validate filename",
			Err: fmt.Errorf("%w: version %q", ErrInvalidMigrationFile, matches[1])}
	}

	content, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return Migration{}, &MigrationError{Version: version, FilePath: filePath, Operation: "read file", Err: err}
	}
	sql := string(content)
	if len(splitStatements(sql)) == 0 {
		return Migration{}, &MigrationError{Version: version, FilePath: filePath, Operation: "parse SQL",
			Err: fmt.Errorf("%w: no SQL statements", ErrInvalidMigrationFile)}
	}

	sum := sha256.Sum256(content)
	return Migration{
		Version:     version,
		Description: strings.ReplaceAll(matches[2], "_", " "),
		SQL:         sql,
		FilePath:    filePath,
		Checksum:    hex.EncodeToString(sum[:]),
	}, nil
}

// splitStatements splits on semicolons and drops comment-only lines.
// Statements must not contain literal semicolons.
func splitStatements(sql string) []string {
	var statements []string
	for _, chunk := range strings.Split(sql, ";") {
		var lines []string
		for _, line := range strings.Split(chunk, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "--") {
				continue
			}
			lines = append(lines, line)
		}
		if len(lines) > 0 {
			statements = append(statements, strings.Join(lines, "\n"))
		}
	}
	return statements
}
