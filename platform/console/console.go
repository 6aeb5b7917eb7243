// Package console is the kernel's debug serial output: a PL011-compatible
// UART driven as an io.Writer, so kern/trace can print through it without
// either package depending on the other's concrete type.
//
// Grounded on _examples/original_source/drivers/pl011/pl011.{c,h}, with the
// register-offset/const-block layout style borrowed from how tamago's
// per-SoC UART drivers (soc/imx6/uart.go) declare their register maps.
package console

import (
	"github.com/monix-go/monix/internal/reg"
)

// PL011 register offsets (struct pl011_regs).
const (
	regDR   = 0x00
	regECR  = 0x04
	regFR   = 0x18
	regILPR = 0x20
	regIBRD = 0x24
	regFBRD = 0x28
	regLCRH = 0x2c
	regCR   = 0x30
	regIFLS = 0x34
	regIMSC = 0x38
)

// Flag Register (UARTFR) bits.
const (
	frTXFF = 5 // transmit FIFO full
	frRXFE = 4 // receive FIFO empty
)

// Control Register (UARTCR) bits.
const (
	crRXE    = 9
	crTXE    = 8
	crUARTEN = 0
)

// Line Control Register (UARTLCR_H) bits.
const lcrhWLEN8 = 3 << 5

// Interrupt Mask Set/Clear Register (UARTIMSC) bits.
const (
	imscRTIM = 1 << 6
	imscRXIM = 1 << 4
)

// UART is a PL011-compatible serial port.
type UART struct {
	Base uint64

	initialized bool
}

// Init configures the UART for baud bps against a reference clock of clock
// Hz, 8N1, with the FIFOs left disabled (pl011_init).
func (u *UART) Init(baud, clock uint64) {
	reg.Write(u.Base+regCR, 0)

	divider := uint32((clock * 4) / baud)
	reg.Write(u.Base+regIBRD, divider>>6)
	reg.Write(u.Base+regFBRD, divider&0x3f)

	reg.Write(u.Base+regLCRH, lcrhWLEN8)
	reg.Write(u.Base+regIMSC, imscRXIM|imscRTIM)
	reg.Write(u.Base+regCR, 1<<crUARTEN|1<<crTXE|1<<crRXE)

	u.initialized = true
}

// Putc blocks until the transmit FIFO has room and writes c (pl011_putc).
func (u *UART) Putc(c byte) {
	for reg.Get(u.Base+regFR, frTXFF, 1) == 1 {
	}
	reg.Write(u.Base+regDR, uint32(c))
}

// Getc blocks until a byte is available and returns it (pl011_getc).
func (u *UART) Getc() byte {
	for reg.Get(u.Base+regFR, frRXFE, 1) == 1 {
	}
	return byte(reg.Read(u.Base + regDR))
}

// Write implements io.Writer, so a *UART can be handed directly to
// kern/trace.SetOutput (pl011_puts, generalized past NUL-terminated C
// strings to an arbitrary byte slice).
func (u *UART) Write(p []byte) (int, error) {
	for _, c := range p {
		if c == '\n' {
			u.Putc('\r')
		}
		u.Putc(c)
	}
	return len(p), nil
}
