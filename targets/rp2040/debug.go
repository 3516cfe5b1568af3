//go:build rp2040 || rp2350

package main

import "machine"

var (
	debugUART    *machine.UART
	debugEnabled bool
)

// InitDebugUART brings up UART0 on GPIO0 (TX) and GPIO1 (RX) at 115200 baud
// for timer diagnostics; USB CDC stays reserved for the host protocol
func InitDebugUART() {
	debugUART = machine.UART0
	err := debugUART.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO0,
		RX:       machine.GPIO1,
	})
	debugEnabled = err == nil
	DebugPrintln("softtimer: debug uart up")
}

// DebugPrintln writes a line to the debug UART. It matches
// core.DebugWriter.
func DebugPrintln(s string) {
	if !debugEnabled {
		return
	}
	_, _ = debugUART.Write([]byte(s))
	_, _ = debugUART.Write([]byte("\r\n"))
}
