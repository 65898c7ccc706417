// Package registry persists source scripts and their fallback order.
//
// Components:
//   - Store: SQLite CRUD for sources, validating scripts before they are saved
//   - Seeder: imports *.js files from a directory on startup, optionally
//     described by a sources.toml manifest
//
// Sources are listed by priority descending, then name, which is the order
// the resolver tries them in.
//
// Example Usage:
//
//	store := registry.NewStore(db, engine.ValidateScript, logger)
//	src, err := store.Create(ctx, registry.CreateInput{Name: "kw", Script: script, Priority: 10})
//	enabled, err := store.ListEnabled(ctx)
package registry
