// Command lurock is the thin CLI entry point (spec §1 "deliberately out of
// scope: the command-line surface"). It parses flags and calls straight
// into internal/app; no package-manager logic lives in this package.
package main

func main() {
	Execute()
}
