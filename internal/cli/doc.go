// Package cli provides vaultctl, an interactive shell over the local vault
// engine.
//
// It wires configuration, the metadata backend (SQLite file or S3 bucket),
// the file-backed secure store and the engine, then runs a REPL. Typical
// flow: init a vault once, unlock with the master password, list, add and
// match credentials, lock.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See NewApp and runREPL for details.
package cli
