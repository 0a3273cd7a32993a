package vm

import "testing"

// TestScenario5SimplePassProgram follows spec.md scenario 5:
// LOADU 1; NOT; CPASS; END. NOT of 1 is 0; CPASS pops 0 and does not
// break (no open block); END halts with curMatch.IsPassing still at
// its initial true value, so Exec returns PASS (true). Final pc lands
// at len(prog) (the position spec.md calls "progLen+1", reading
// "progLen" there as the index of the last instruction rather than
// the instruction count), and si is back to 0.
func TestScenario5SimplePassProgram(t *testing.T) {
	v := New(8192)
	v.SetProgram([]Inst{
		{Op: OpLoadU, Arg: 1},
		{Op: OpNot},
		{Op: OpCPass},
		{Op: OpEnd},
	})
	v.FreezeSetup()

	passed, err := v.Exec(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !passed {
		t.Fatal("expected PASS")
	}
	if v.pc != len(v.prog) {
		t.Fatalf("expected final pc = %d, got %d", len(v.prog), v.pc)
	}
	if v.si != 0 {
		t.Fatalf("expected final si = 0, got %d", v.si)
	}
}

func TestCFailNoOpenBlockTerminatesFail(t *testing.T) {
	v := New(8192)
	v.SetProgram([]Inst{
		{Op: OpLoadU, Arg: 1},
		{Op: OpCFail},
		{Op: OpLoadU, Arg: 1}, // unreachable
		{Op: OpEnd},
	})
	v.FreezeSetup()

	passed, err := v.Exec(nil)
	if err != nil {
		t.Fatal(err)
	}
	if passed {
		t.Fatal("expected FAIL")
	}
}

// TestCFailInsideBlockSkipsToEndBlk verifies the testable property
// from spec.md §8: "CFAIL(1) inside a BLK breaks to matching ENDBLK
// without executing intervening instructions." CFAIL still marks
// curMatch failing (so the overall result is FAIL), but execution
// resumes after the block's ENDBLK rather than terminating there.
func TestCFailInsideBlockSkipsToEndBlk(t *testing.T) {
	v := New(8192)
	v.SetProgram([]Inst{
		{Op: OpBlk},
		{Op: OpLoadU, Arg: 1},
		{Op: OpCFail},
		{Op: OpLoadU, Arg: 99}, // skipped
		{Op: OpEndBlk},
		{Op: OpEnd},
	})
	v.FreezeSetup()

	passed, err := v.Exec(nil)
	if err != nil {
		t.Fatal(err)
	}
	if passed {
		t.Fatal("expected FAIL: CFAIL marks curMatch failing even when it only breaks the block")
	}
	if v.si != 0 {
		t.Fatalf("expected clean stack after block break, got si=%d", v.si)
	}
	if v.pc != len(v.prog) {
		t.Fatalf("expected execution to resume past ENDBLK and reach END, pc=%d", v.pc)
	}
}

func TestJzSkipsOnZero(t *testing.T) {
	v := New(8192)
	v.SetProgram([]Inst{
		{Op: OpLoadU, Arg: 0},
		{Op: OpJz, Arg: 1}, // skip the next instruction
		{Op: OpLoadU, Arg: 42}, // skipped
		{Op: OpEnd},
	})
	v.FreezeSetup()

	if _, err := v.Exec(nil); err != nil {
		t.Fatal(err)
	}
	if v.pc != 4 {
		t.Fatalf("expected pc=4 after skip, got %d", v.pc)
	}
}

func TestJzBadJumpPastEnd(t *testing.T) {
	v := New(8192)
	v.SetProgram([]Inst{
		{Op: OpLoadU, Arg: 0},
		{Op: OpJz, Arg: 250},
		{Op: OpEnd},
	})
	v.FreezeSetup()

	if _, err := v.Exec(nil); err == nil {
		t.Fatal("expected BADJMP error")
	}
}

func TestBadKReported(t *testing.T) {
	v := New(8192)
	v.SetProgram([]Inst{
		{Op: OpLoadK, Arg: 5},
		{Op: OpEnd},
	})
	v.FreezeSetup()

	if _, err := v.Exec(nil); err == nil {
		t.Fatal("expected BADK error")
	}
}

func TestEndBlkWithoutBlkFails(t *testing.T) {
	v := New(8192)
	v.SetProgram([]Inst{
		{Op: OpEndBlk},
		{Op: OpEnd},
	})
	v.FreezeSetup()

	if _, err := v.Exec(nil); err == nil {
		t.Fatal("expected BADENDBLK error")
	}
}
