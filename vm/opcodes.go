package vm

import (
	"github.com/CSUNetSec/bgpfilter/bgp"
	"github.com/CSUNetSec/bgpfilter/errs"
)

// Op is a bytecode opcode (spec.md §4.G's instruction table).
type Op uint8

const (
	OpNop Op = iota
	OpLoad
	OpLoadU
	OpLoadN
	OpLoadK
	OpCall
	OpBlk
	OpEndBlk
	OpTag
	OpNot
	OpCFail
	OpCPass
	OpJz
	OpJnz
	OpChkT
	OpChkA
	OpExct
	OpSubn
	OpSupn
	OpRelt
	OpAsMtch
	OpFasMtc // reserved, spec.md §9 Open Question: decodes, fails at execution
	OpComTch
	OpAcomTc
	OpEnd

	// Reserved opcodes named in spec.md §9's Open Question but never
	// assigned table entries; kept as distinct values purely so a
	// decoder can name them in an error rather than collapsing them
	// onto OpFasMtc.
	OpOrPass
	OpOrFail
	OpMovK
)

var reservedOps = map[Op]bool{
	OpFasMtc: true,
	OpOrPass: true,
	OpOrFail: true,
	OpMovK:   true,
}

// step executes one instruction, returning (halt, passing, err). halt
// is true when execution should stop immediately (END, or CFAIL/CPASS
// with no open block).
func (v *Vm) step(in Inst) (bool, bool, error) {
	if reservedOps[in.Op] {
		return false, false, v.fail(errs.ErrIllegalInstr, "step")
	}

	switch in.Op {
	case OpNop:
		v.pc++

	case OpLoad:
		if err := v.push(int64(int8(in.Arg))); err != nil {
			return false, false, err
		}
		v.pc++

	case OpLoadU:
		if err := v.push(int64(in.Arg)); err != nil {
			return false, false, err
		}
		v.pc++

	case OpLoadN:
		if err := v.push(0); err != nil {
			return false, false, err
		}
		v.pc++

	case OpLoadK:
		if int(in.Arg) >= len(v.k) {
			return false, false, v.fail(errs.ErrBadK, "LOADK")
		}
		if err := v.push(v.k[in.Arg]); err != nil {
			return false, false, err
		}
		v.pc++

	case OpCall:
		if int(in.Arg) >= len(v.funcs) {
			return false, false, v.fail(errs.ErrBadFn, "CALL")
		}
		if err := v.funcs[in.Arg](v); err != nil {
			return false, false, err
		}
		v.pc++

	case OpBlk:
		v.nblk++
		v.pc++

	case OpEndBlk:
		if v.nblk == 0 {
			return false, false, v.fail(errs.ErrBadEndBlk, "ENDBLK")
		}
		v.nblk--
		v.pc++

	case OpTag:
		v.curMatch.Tag = in.Arg
		v.pc++

	case OpNot:
		val, err := v.pop()
		if err != nil {
			return false, false, err
		}
		res := int64(0)
		if val == 0 {
			res = 1
		}
		if err := v.push(res); err != nil {
			return false, false, err
		}
		v.pc++

	case OpCFail:
		val, err := v.pop()
		if err != nil {
			return false, false, err
		}
		if val != 0 {
			v.curMatch.IsPassing = false
			return v.breakBlock(false)
		}
		v.pc++

	case OpCPass:
		val, err := v.pop()
		if err != nil {
			return false, false, err
		}
		if val != 0 {
			v.curMatch.IsPassing = true
			return v.breakBlock(true)
		}
		v.pc++

	case OpJz:
		val, err := v.peek()
		if err != nil {
			return false, false, err
		}
		if val == 0 {
			if _, err := v.pop(); err != nil {
				return false, false, err
			}
			newPc := v.pc + 1 + int(in.Arg)
			if newPc > len(v.prog) {
				return false, false, v.fail(errs.ErrBadJump, "JZ")
			}
			v.pc = newPc
		} else {
			if _, err := v.pop(); err != nil {
				return false, false, err
			}
			v.pc++
		}

	case OpJnz:
		val, err := v.peek()
		if err != nil {
			return false, false, err
		}
		if val != 0 {
			if _, err := v.pop(); err != nil {
				return false, false, err
			}
			newPc := v.pc + 1 + int(in.Arg)
			if newPc > len(v.prog) {
				return false, false, v.fail(errs.ErrBadJump, "JNZ")
			}
			v.pc = newPc
		} else {
			if _, err := v.pop(); err != nil {
				return false, false, err
			}
			v.pc++
		}

	case OpChkT:
		res := int64(0)
		if v.msg != nil && v.msg.Type() == bgp.Type(in.Arg) {
			res = 1
		}
		if err := v.push(res); err != nil {
			return false, false, err
		}
		v.emitMatch(res != 0)
		v.pc++

	case OpChkA:
		res, err := v.chkAttr(in.Arg)
		if err != nil {
			return false, false, err
		}
		if err := v.push(res); err != nil {
			return false, false, err
		}
		v.emitMatch(res != 0)
		v.pc++

	case OpExct, OpSubn, OpSupn, OpRelt:
		res, err := v.netOp(in.Op, NetSet(in.Arg))
		if err != nil {
			return false, false, err
		}
		if err := v.push(res); err != nil {
			return false, false, err
		}
		v.emitMatch(res != 0)
		v.pc++

	case OpAsMtch:
		res, err := v.asMatch()
		if err != nil {
			return false, false, err
		}
		if err := v.push(res); err != nil {
			return false, false, err
		}
		v.emitMatch(res != 0)
		v.pc++

	case OpComTch:
		res, err := v.comMatch(false)
		if err != nil {
			return false, false, err
		}
		if err := v.push(res); err != nil {
			return false, false, err
		}
		v.emitMatch(res != 0)
		v.pc++

	case OpAcomTc:
		res, err := v.comMatch(true)
		if err != nil {
			return false, false, err
		}
		if err := v.push(res); err != nil {
			return false, false, err
		}
		v.emitMatch(res != 0)
		v.pc++

	case OpEnd:
		v.pc++
		return true, v.curMatch.IsPassing, nil

	default:
		return false, false, v.fail(errs.ErrIllegalInstr, "step")
	}

	return false, false, nil
}

// breakBlock implements the CFAIL/CPASS "break current BLK" rule: if a
// block is open, scan forward for its matching ENDBLK (tracking nested
// BLK/ENDBLK depth) and resume just past it; with no open block,
// terminate execution immediately with the given result.
func (v *Vm) breakBlock(passing bool) (bool, bool, error) {
	if v.nblk == 0 {
		return true, passing, nil
	}
	depth := 1
	pc := v.pc + 1
	for pc < len(v.prog) {
		switch v.prog[pc].Op {
		case OpBlk:
			depth++
		case OpEndBlk:
			depth--
			if depth == 0 {
				v.nblk--
				v.pc = pc + 1
				return false, false, nil
			}
		}
		pc++
	}
	return false, false, v.fail(errs.ErrBadEndBlk, "breakBlock")
}
