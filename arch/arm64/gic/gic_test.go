package gic

import (
	"errors"
	"testing"

	"github.com/monix-go/monix/kern/errs"
)

func TestRegisterRejectsSPIAndExtendedRange(t *testing.T) {
	var g GIC // Dist/Redist deliberately left zero: these IDs must be
	// rejected before any register access, so no MMIO ever happens.

	for _, id := range []uint32{FirstSPI, FirstSPI + 1, FirstSIN, FirstSIN + 1} {
		if err := g.Register(id, 0); !errors.Is(err, errs.ErrInvalidIntID) {
			t.Fatalf("Register(%d) = %v, want ErrInvalidIntID", id, err)
		}
	}
}

func TestInterruptIDRanges(t *testing.T) {
	if FirstSGI != 0 || FirstPPI != 16 || FirstSPI != 32 || FirstSIN != 1020 {
		t.Fatalf("unexpected GICv3 ID range constants: SGI=%d PPI=%d SPI=%d SIN=%d",
			FirstSGI, FirstPPI, FirstSPI, FirstSIN)
	}
}
