// Package hippomem is a personal long-term memory store: a typed note
// graph with hybrid retrieval over dense-vector similarity, spreading
// activation, BM25 lexical match, and temporal overlap/ordering, plus a
// background sleep-compute cycle that consolidates and maintains the
// graph between requests.
//
// It is a 100% pure Go library built on SQLite via modernc.org/sqlite
// (no cgo), designed to run embedded in a single process: open an
// Engine against a database file, add notes, and search them.
package hippomem
