package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isUnlocked() bool
	Init(ctx context.Context, args []string) error
	Unlock(ctx context.Context, args []string) error
	Lock(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Add(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Match(ctx context.Context, args []string) error
	Query(ctx context.Context, args []string) error
	Exec(ctx context.Context, args []string) error
	Biometric(ctx context.Context, args []string) error
	Timeout(ctx context.Context, args []string) error
	Background(ctx context.Context, args []string) error
	Foreground(ctx context.Context, args []string) error
	Status(ctx context.Context, args []string) error
	Wipe(ctx context.Context, args []string) error
}

// runREPL reads commands from scanner until EOF, "exit" or "quit".
//
// The prompt shows the engine state (from statusFn). Commands:
//
//	Locked:
//	  - help                  show available commands
//	  - init                  create a new vault protected by a master password
//	  - unlock                open the vault
//	  - status                show engine state and vault revision
//	  - biometric on|off      toggle secure store unlock
//	  - timeout <seconds>     set the auto-lock timeout
//	  - wipe                  delete the vault and every stored key
//	  - exit | quit           leave the program
//
//	Unlocked, additionally:
//	  - (l)ist                list credentials
//	  - add                   add a credential (interactive)
//	  - delete <id>           soft-delete a credential
//	  - match <app or url>    credentials for an app or site
//	  - query <sql>           run a read query
//	  - exec <sql>            run a statement and persist
//	  - background|foreground simulate the app lifecycle for auto-lock
//	  - lock                  lock the vault
//
// Errors returned by handlers are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("vault (%s) > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			if a.isUnlocked() {
				printlnFn("Available commands: (l)ist, add, delete, match, query, exec, background, foreground, lock, status, biometric, timeout, wipe, exit")
			} else {
				printlnFn("Available commands: init, unlock, status, biometric, timeout, wipe, exit")
			}

		case "init":
			err = a.Init(ctx, args)
		case "unlock":
			err = a.Unlock(ctx, args)
		case "lock":
			err = a.Lock(ctx, args)
		case "l", "list":
			err = a.List(ctx, args)
		case "add":
			err = a.Add(ctx, args)
		case "delete":
			err = a.Delete(ctx, args)
		case "match":
			err = a.Match(ctx, args)
		case "query":
			err = a.Query(ctx, args)
		case "exec":
			err = a.Exec(ctx, args)
		case "biometric":
			err = a.Biometric(ctx, args)
		case "timeout":
			err = a.Timeout(ctx, args)
		case "background":
			err = a.Background(ctx, args)
		case "foreground":
			err = a.Foreground(ctx, args)
		case "status":
			err = a.Status(ctx, args)
		case "wipe":
			err = a.Wipe(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err)
		}
	}
}
