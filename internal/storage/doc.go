// Package storage persists reminder definitions.
//
// A Store always reads and writes the whole ordered collection; there is no
// incremental format. Drivers:
//   - "file": one JSON or YAML document (chosen by file extension)
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "memory": in-process only, nothing survives a restart
package storage
