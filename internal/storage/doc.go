// Package storage persists the bot's durable documents (the catalog snapshot
// and the watchlist) behind a small named-document API.
//
// The file driver keeps each document as a standalone, pretty-printed JSON
// file so the data stays hand-editable. The sqlite driver stores the same
// payloads in a single database file.
package storage
