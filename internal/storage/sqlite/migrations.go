package sqlite

import (
	"fmt"
	"time"
)

// Migration is one ordered schema change. Up and Down are statement lists
// executed inside a single transaction.
type Migration struct {
	Name string
	Up   []string
	Down []string
}

// migrations is the single ordered list. Append only; never reorder.
var migrations = []Migration{
	{
		Name: "001_create_nodes",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS nodes (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				url TEXT NOT NULL,
				source_domain TEXT,
				company TEXT,
				phrase_description TEXT,
				short_description TEXT,
				ai_summary TEXT,
				logo_url TEXT,
				extracted_fields TEXT NOT NULL DEFAULT '{}',
				metadata_tags TEXT NOT NULL DEFAULT '[]',
				segment TEXT,
				category TEXT,
				content_type TEXT,
				function_parent_id TEXT,
				function_hierarchy_code TEXT,
				organization_parent_id TEXT,
				organization_hierarchy_code TEXT,
				is_deleted INTEGER NOT NULL DEFAULT 0,
				date_added INTEGER NOT NULL,
				date_modified INTEGER NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_url_active ON nodes(url) WHERE is_deleted = 0`,
			`CREATE INDEX IF NOT EXISTS idx_nodes_function_parent ON nodes(function_parent_id, date_added DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_nodes_org_parent ON nodes(organization_parent_id, date_added DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_nodes_function_parent_deleted ON nodes(function_parent_id, is_deleted)`,
			`CREATE INDEX IF NOT EXISTS idx_nodes_org_parent_deleted ON nodes(organization_parent_id, is_deleted)`,
			`CREATE INDEX IF NOT EXISTS idx_nodes_function_code ON nodes(function_hierarchy_code)`,
			`CREATE INDEX IF NOT EXISTS idx_nodes_org_code ON nodes(organization_hierarchy_code)`,
			`CREATE INDEX IF NOT EXISTS idx_nodes_classification ON nodes(segment, category, content_type)`,
			`CREATE TABLE IF NOT EXISTS key_concepts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				node_id TEXT NOT NULL,
				concept TEXT NOT NULL,
				UNIQUE(node_id, concept),
				FOREIGN KEY (node_id) REFERENCES nodes(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_key_concepts_node ON key_concepts(node_id)`,
		},
		Down: []string{
			`DROP TABLE IF EXISTS key_concepts`,
			`DROP INDEX IF EXISTS idx_nodes_classification`,
			`DROP INDEX IF EXISTS idx_nodes_org_code`,
			`DROP INDEX IF EXISTS idx_nodes_function_code`,
			`DROP INDEX IF EXISTS idx_nodes_org_parent_deleted`,
			`DROP INDEX IF EXISTS idx_nodes_function_parent_deleted`,
			`DROP INDEX IF EXISTS idx_nodes_org_parent`,
			`DROP INDEX IF EXISTS idx_nodes_function_parent`,
			`DROP INDEX IF EXISTS idx_nodes_url_active`,
			`DROP TABLE IF EXISTS nodes`,
		},
	},
	{
		Name: "002_create_search_index",
		Up: []string{
			`CREATE VIRTUAL TABLE IF NOT EXISTS nodes_fts USING fts5(
				title,
				source_domain,
				company,
				phrase_description,
				short_description,
				ai_summary,
				content=nodes,
				content_rowid=rowid
			)`,
			`CREATE TRIGGER IF NOT EXISTS nodes_fts_insert AFTER INSERT ON nodes BEGIN
				INSERT INTO nodes_fts(rowid, title, source_domain, company, phrase_description, short_description, ai_summary)
				VALUES (new.rowid, new.title, new.source_domain, new.company, new.phrase_description, new.short_description, new.ai_summary);
			END`,
			`CREATE TRIGGER IF NOT EXISTS nodes_fts_update AFTER UPDATE ON nodes BEGIN
				UPDATE nodes_fts
				SET title = new.title,
					source_domain = new.source_domain,
					company = new.company,
					phrase_description = new.phrase_description,
					short_description = new.short_description,
					ai_summary = new.ai_summary
				WHERE rowid = new.rowid;
			END`,
			`CREATE TRIGGER IF NOT EXISTS nodes_fts_delete AFTER DELETE ON nodes BEGIN
				DELETE FROM nodes_fts WHERE rowid = old.rowid;
			END`,
		},
		Down: []string{
			`DROP TRIGGER IF EXISTS nodes_fts_delete`,
			`DROP TRIGGER IF EXISTS nodes_fts_update`,
			`DROP TRIGGER IF EXISTS nodes_fts_insert`,
			`DROP TABLE IF EXISTS nodes_fts`,
		},
	},
	{
		Name: "003_create_metadata_graph",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS metadata_code_registry (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				type TEXT NOT NULL,
				code TEXT NOT NULL,
				display_name TEXT NOT NULL,
				description TEXT,
				usage_count INTEGER NOT NULL DEFAULT 0,
				UNIQUE(type, code)
			)`,
			`CREATE TABLE IF NOT EXISTS node_metadata (
				node_id TEXT NOT NULL,
				registry_id INTEGER NOT NULL,
				confidence REAL NOT NULL DEFAULT 1.0,
				source TEXT NOT NULL DEFAULT 'ai',
				UNIQUE(node_id, registry_id),
				FOREIGN KEY (node_id) REFERENCES nodes(id) ON DELETE CASCADE,
				FOREIGN KEY (registry_id) REFERENCES metadata_code_registry(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_node_metadata_node ON node_metadata(node_id)`,
			`CREATE INDEX IF NOT EXISTS idx_node_metadata_registry ON node_metadata(registry_id)`,
			`CREATE TABLE IF NOT EXISTS node_similarity (
				node_a_id TEXT NOT NULL,
				node_b_id TEXT NOT NULL,
				score REAL NOT NULL,
				method TEXT NOT NULL DEFAULT 'jaccard_weighted',
				computed_at INTEGER NOT NULL,
				UNIQUE(node_a_id, node_b_id),
				CHECK(node_a_id < node_b_id),
				FOREIGN KEY (node_a_id) REFERENCES nodes(id) ON DELETE CASCADE,
				FOREIGN KEY (node_b_id) REFERENCES nodes(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_similarity_a ON node_similarity(node_a_id, score DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_similarity_b ON node_similarity(node_b_id, score DESC)`,
			`CREATE TABLE IF NOT EXISTS hierarchy_code_changes (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				change_type TEXT NOT NULL,
				hierarchy_type TEXT NOT NULL,
				triggered_by TEXT NOT NULL,
				old_code TEXT,
				new_code TEXT,
				node_id TEXT NOT NULL,
				related_node_ids TEXT,
				metadata TEXT,
				created_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_hierarchy_changes_node ON hierarchy_code_changes(node_id, created_at DESC)`,
			`CREATE TABLE IF NOT EXISTS segments (
				id TEXT PRIMARY KEY,
				code TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				color TEXT
			)`,
			`CREATE TABLE IF NOT EXISTS organizations (
				id TEXT PRIMARY KEY,
				code TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				color TEXT
			)`,
			`CREATE TABLE IF NOT EXISTS settings_keys (
				provider TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
		},
		Down: []string{
			`DROP TABLE IF EXISTS settings_keys`,
			`DROP TABLE IF EXISTS organizations`,
			`DROP TABLE IF EXISTS segments`,
			`DROP INDEX IF EXISTS idx_hierarchy_changes_node`,
			`DROP TABLE IF EXISTS hierarchy_code_changes`,
			`DROP INDEX IF EXISTS idx_similarity_b`,
			`DROP INDEX IF EXISTS idx_similarity_a`,
			`DROP TABLE IF EXISTS node_similarity`,
			`DROP INDEX IF EXISTS idx_node_metadata_registry`,
			`DROP INDEX IF EXISTS idx_node_metadata_node`,
			`DROP TABLE IF EXISTS node_metadata`,
			`DROP TABLE IF EXISTS metadata_code_registry`,
		},
	},
	{
		Name: "004_add_has_complete_metadata",
		Up: []string{
			`ALTER TABLE nodes ADD COLUMN has_complete_metadata INTEGER NOT NULL DEFAULT 0`,
			`CREATE INDEX IF NOT EXISTS idx_nodes_complete_metadata ON nodes(has_complete_metadata)`,
		},
		Down: []string{
			`DROP INDEX IF EXISTS idx_nodes_complete_metadata`,
			`ALTER TABLE nodes DROP COLUMN has_complete_metadata`,
		},
	},
}

// Migrate applies every pending migration in order, each in its own
// transaction. A failure aborts without recording the migration.
func (s *DB) Migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.appliedMigrations()
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if applied[migration.Name] {
			continue
		}
		if err := s.applyMigration(migration); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
		s.logger.Info().Str("migration", migration.Name).Msg("Migration applied")
	}
	return nil
}

func (s *DB) applyMigration(migration Migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range migration.Up {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`INSERT INTO _migrations (name, applied_at) VALUES (?, ?)`,
		migration.Name, time.Now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
}

// Rollback reverts one named migration. Refused if any later migration is
// still applied.
func (s *DB) Rollback(name string) error {
	index := -1
	for i, migration := range migrations {
		if migration.Name == name {
			index = i
			break
		}
	}
	if index < 0 {
		return fmt.Errorf("unknown migration %q", name)
	}

	applied, err := s.appliedMigrations()
	if err != nil {
		return err
	}
	if !applied[name] {
		return fmt.Errorf("migration %q is not applied", name)
	}
	for _, later := range migrations[index+1:] {
		if applied[later.Name] {
			return fmt.Errorf("cannot roll back %q: later migration %q is still applied", name, later.Name)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range migrations[index].Down {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`DELETE FROM _migrations WHERE name = ?`, name); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.Info().Str("migration", name).Msg("Migration rolled back")
	return nil
}

func (s *DB) appliedMigrations() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT name FROM _migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations table: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// MigrationsApplied reports whether every known migration has been applied,
// for the readiness probe.
func (s *DB) MigrationsApplied() (bool, error) {
	applied, err := s.appliedMigrations()
	if err != nil {
		return false, err
	}
	for _, migration := range migrations {
		if !applied[migration.Name] {
			return false, nil
		}
	}
	return true, nil
}
