//go:build !sqlite_fts5

package database

// The chunk index is an FTS5 virtual table, and mattn/go-sqlite3 only
// compiles FTS5 in when the sqlite_fts5 build tag is set. Without it
// every migration fails at runtime with "no such module: fts5", so the
// tag is enforced at compile time instead:
//
//	go build -tags sqlite_fts5 ./...
//	go test -tags sqlite_fts5 ./...
var _ = thisPackageRequiresBuildTagSqliteFTS5
