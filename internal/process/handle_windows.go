//go:build windows

package process

import "os/exec"

// gracefulSignal has no POSIX-signal equivalent on Windows. os/exec offers
// no console-event helper, so the best-effort "graceful" request here is a
// no-op: Kill keeps polling until its timeout (or ctx) expires and then
// takes the forceful kill path (§9 "Windows signal semantics").
func gracefulSignal(cmd *exec.Cmd) {}
