// Package sqlite stores checkpoints in a SQLite database file.
//
//	s, err := sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{
//	    Path: "./checkpoints.db",
//	})
package sqlite
