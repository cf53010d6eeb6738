// Package jsondb stores a collection of records as one JSON array in a file.
//
// The whole collection is rewritten on every store. A write takes an exclusive
// lock on "<path>.lock", copies the current document to a backup, stages the
// new document in "<path>.tmp" and renames it over the primary. A reader that
// finds the primary unparsable falls back to the backup and repairs the
// primary when no writer is active.
//
// The layout next to a collection at movies.json:
//
//	movies.json       primary document
//	movies.json.lock  held while a write is in progress
//	movies.json.bak   document as it was before the last write
//	movies.json.tmp   staged document, only present during a write
package jsondb
