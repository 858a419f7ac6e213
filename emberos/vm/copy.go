package vm

import "fmt"

// CopyOut copies src into user memory at dstva.
func (as *AddressSpace) CopyOut(dstva uint64, src []byte) error {
	for len(src) > 0 {
		pte := as.lookup(dstva)
		if pte&PteV == 0 || pte&PteU == 0 || pte&PteW == 0 {
			return fmt.Errorf("copyout va %#x: %w", dstva, ErrBadAddress)
		}
		off := dstva % PageSize
		n := copy(as.mem.Bytes(pte2pa(pte)+off, int(PageSize-off)), src)
		src = src[n:]
		dstva += uint64(n)
	}
	return nil
}

// CopyIn fills dst from user memory at srcva.
func (as *AddressSpace) CopyIn(dst []byte, srcva uint64) error {
	for len(dst) > 0 {
		pa, ok := as.Translate(srcva)
		if !ok {
			return fmt.Errorf("copyin va %#x: %w", srcva, ErrBadAddress)
		}
		off := srcva % PageSize
		n := copy(dst, as.mem.Bytes(pa, int(PageSize-off)))
		dst = dst[n:]
		srcva += uint64(n)
	}
	return nil
}

// CopyInString reads a NUL-terminated string of at most max bytes from srcva.
func (as *AddressSpace) CopyInString(srcva uint64, max int) (string, error) {
	buf := make([]byte, 0, 64)
	for len(buf) < max {
		pa, ok := as.Translate(srcva)
		if !ok {
			return "", fmt.Errorf("copyinstr va %#x: %w", srcva, ErrBadAddress)
		}
		off := srcva % PageSize
		chunk := as.mem.Bytes(pa, int(PageSize-off))
		for _, c := range chunk {
			if c == 0 {
				return string(buf), nil
			}
			buf = append(buf, c)
			if len(buf) == max {
				break
			}
		}
		srcva += uint64(len(chunk))
	}
	return string(buf), nil
}
