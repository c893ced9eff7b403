package store

// Schema creates the entries table. Columns added after the first release
// are listed in addedColumns and backfilled by migrate on older files.
const Schema = `
CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    app TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL DEFAULT '',
    timestamp INTEGER NOT NULL UNIQUE,
    embedding BLOB NOT NULL DEFAULT x'',
    filename TEXT NOT NULL DEFAULT '',
    page_url TEXT
);
CREATE INDEX IF NOT EXISTS idx_timestamp ON entries (timestamp);
`

// addedColumns are appended with ALTER TABLE when missing, in order.
var addedColumns = []struct {
	name string
	ddl  string
}{
	{"filename", "ALTER TABLE entries ADD COLUMN filename TEXT NOT NULL DEFAULT ''"},
	{"page_url", "ALTER TABLE entries ADD COLUMN page_url TEXT"},
}
