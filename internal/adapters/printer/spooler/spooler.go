// Package spooler submits raw jobs through the operating system print
// spooler: CUPS (lp, lpstat, cancel) on Unix and winspool on Windows.
// Jobs bypass the driver, so the bytes reach the printer unchanged.
package spooler

type Config struct {
	// Printer is the queue name; empty means the system default.
	Printer string
}

const jobTitle = "posprint"
