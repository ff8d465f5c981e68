package pulseblaster

import "fmt"

// An OpCode is a pulse program instruction type. Values match the board's
// instruction codes.
type OpCode int

const (
	Continue OpCode = 0
	Stop     OpCode = 1
	Branch   OpCode = 6
)

func (o OpCode) String() string {
	switch o {
	case Continue:
		return "CONTINUE"
	case Stop:
		return "STOP"
	case Branch:
		return "BRANCH"
	}
	return fmt.Sprintf("OpCode(%d)", int(o))
}

// An Instruction sets the output Flags for Duration microseconds, then
// executes Op with argument Data.
type Instruction struct {
	Flags    uint32
	Op       OpCode
	Data     int
	Duration float64
}

// A Program is a complete pulse program: the expanded block sequence, whose
// last instruction branches back to the start, followed by a STOP.
type Program struct {
	Instructions []Instruction
}

// body returns the instructions before the trailing STOP.
func (p *Program) body() []Instruction {
	n := len(p.Instructions)
	if n > 0 && p.Instructions[n-1].Op == Stop {
		return p.Instructions[:n-1]
	}
	return p.Instructions
}

// Bitmasks returns the flags of every instruction but the final STOP.
func (p *Program) Bitmasks() []uint32 {
	body := p.body()
	r := make([]uint32, len(body))
	for i, in := range body {
		r[i] = in.Flags
	}
	return r
}

// Durations returns the durations of every instruction but the final STOP.
func (p *Program) Durations() []float64 {
	body := p.body()
	r := make([]float64, len(body))
	for i, in := range body {
		r[i] = in.Duration
	}
	return r
}

// TotalDuration returns the time one pass through the program takes.
func (p *Program) TotalDuration() float64 {
	var sum float64
	for _, d := range p.Durations() {
		sum += d
	}
	return sum
}

// CheckLoop verifies the BRANCH/STOP framing: every instruction but the last
// two continues, the second to last branches to instruction 0 and the last
// stops.
func (p *Program) CheckLoop() error {
	n := len(p.Instructions)
	if n < 2 {
		return fmt.Errorf("program has %d instructions, want at least 2", n)
	}
	for i, in := range p.Instructions[:n-2] {
		if in.Op != Continue {
			return fmt.Errorf("instruction %d is %v, want %v", i, in.Op, Continue)
		}
	}
	if br := p.Instructions[n-2]; br.Op != Branch || br.Data != 0 {
		return fmt.Errorf("instruction %d is %v to %d, want %v to 0", n-2, br.Op, br.Data, Branch)
	}
	if st := p.Instructions[n-1]; st.Op != Stop || st.Flags != 0 {
		return fmt.Errorf("last instruction is %v with flags %#x, want %v with no outputs", st.Op, st.Flags, Stop)
	}
	return nil
}
