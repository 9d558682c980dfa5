// Package secrets detects and redacts credentials in text.
//
// Every prompt sent to an agent and every response it returns is recorded in
// the invocation audit trail and, through it, in the snapshot file. Both pass
// through a Scrubber first so that keys pasted into a goal or echoed by a tool
// never reach disk. Findings keep the rule id and position but never the
// matched value.
package secrets
