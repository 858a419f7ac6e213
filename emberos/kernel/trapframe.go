package kernel

import (
	"encoding/binary"
	"fmt"
)

// TrapFrame is the per-process register save area. It lives in the
// process's trap-frame page, mapped just below the trampoline, and uses the
// same field order as the entry code expects.
type TrapFrame struct {
	KernelSatp   uint64
	KernelSp     uint64
	KernelTrap   uint64
	Epc          uint64
	KernelHartid uint64
	Ra           uint64
	Sp           uint64
	Gp           uint64
	Tp           uint64
	T0           uint64
	T1           uint64
	T2           uint64
	S0           uint64
	S1           uint64
	A0           uint64
	A1           uint64
	A2           uint64
	A3           uint64
	A4           uint64
	A5           uint64
	A6           uint64
	A7           uint64
	S2           uint64
	S3           uint64
	S4           uint64
	S5           uint64
	S6           uint64
	S7           uint64
	S8           uint64
	S9           uint64
	S10          uint64
	S11          uint64
	T3           uint64
	T4           uint64
	T5           uint64
	T6           uint64
}

// trapFrameBytes is the encoded size of a TrapFrame.
var trapFrameBytes = binary.Size(TrapFrame{})

func (tf *TrapFrame) decode(b []byte) {
	if _, err := binary.Decode(b, binary.LittleEndian, tf); err != nil {
		panic(fmt.Errorf("trapframe: decode: %w", err))
	}
}

func (tf *TrapFrame) encode(b []byte) {
	if _, err := binary.Encode(b, binary.LittleEndian, tf); err != nil {
		panic(fmt.Errorf("trapframe: encode: %w", err))
	}
}

func (k *Kernel) loadTrapFrame(p *Proc) TrapFrame {
	var tf TrapFrame
	tf.decode(k.mem.Bytes(p.trapframe, trapFrameBytes))
	return tf
}

func (k *Kernel) storeTrapFrame(p *Proc, tf *TrapFrame) {
	tf.encode(k.mem.Bytes(p.trapframe, trapFrameBytes))
}
