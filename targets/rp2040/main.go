//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"

	"softtimer/core"
	"softtimer/protocol"
)

// ledPeriod is the on-board LED half period in ticks
const ledPeriod = 500

var (
	// Buffers for communication
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	timer *core.Guarded
	trace *core.TraceRing

	// Debug counters
	messagesReceived uint32
	msgerrors        uint32

	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

func main() {
	InitUSB()
	InitDebugUART()
	UpdateSystemTime()

	gpio := NewRPGPIODriver()
	trace = core.NewTraceRing()
	timer = core.NewGuarded(
		core.NewTimer(core.SystemClock, gpio,
			core.WithDebugWriter(DebugPrintln),
			core.WithTraceRing(trace)),
		core.NewInterruptLocker())

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()

	registry := core.NewCommandRegistry()
	transport = protocol.NewTransport(outputBuffer, registry.DispatchFrame)
	core.RegisterTimerCommands(registry, timer, gpio, func(cmdID uint16, args func(output protocol.OutputBuffer)) {
		if err := transport.SendCommand(cmdID, args); err != nil {
			msgerrors++
		}
	})

	// Runs from inside Receive, so the input FIFO is left alone
	transport.SetResetCallback(func() {
		outputBuffer.Reset()
		resetTimers()
	})
	// ACKs go out before the response they precede
	transport.SetFlushCallback(writeUSB)
	transport.SetErrorCallback(func(err error) {
		msgerrors++
		DebugPrintln("frame: " + err.Error())
	})

	resetTimers()

	go usbReaderLoop()

	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			UpdateSystemTime()

			if !inputBuffer.IsEmpty() {
				data := inputBuffer.Data()
				originalLen := len(data)
				inputBuf := protocol.NewSliceInputBuffer(data)

				transport.Receive(inputBuf)
				messagesReceived++

				if consumed := originalLen - inputBuf.Available(); consumed > 0 {
					inputBuffer.Pop(consumed)
				}
			}

			if len(outputBuffer.Result()) > 0 {
				writeUSB()
			}

			timer.Update()
		}()

		// Yield to the USB reader
		time.Sleep(10 * time.Microsecond)
	}
}

// resetTimers clears every event and restarts the local ones: the LED
// heartbeat and the status pixel. The trace is dumped first so a host
// reset leaves a record of what was running.
func resetTimers() {
	trace.Dump(DebugPrintln)
	trace.Clear()
	timer.Reset()
	timer.Oscillate(core.GPIOPin(machine.LED), ledPeriod, true)
	startStatusPixel(timer)
}

// usbReaderLoop runs in a goroutine to continuously read USB data
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		if USBAvailable() > 0 {
			data, err := USBRead()
			if err != nil {
				msgerrors++
				time.Sleep(1 * time.Millisecond)
				continue
			}

			// Fresh state for a host that reconnected
			if usbWasDisconnected {
				usbWasDisconnected = false
				inputBuffer.Reset()
				transport.Reset()
				messagesReceived = 0
				consecutiveWriteFailures = 0
			}

			if inputBuffer.Write([]byte{data}) == 0 {
				msgerrors++
				time.Sleep(10 * time.Millisecond)
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// writeUSB drains the output buffer to USB. Repeated failures mark the host
// as gone and drop both buffers.
func writeUSB() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}
