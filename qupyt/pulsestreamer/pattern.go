package pulsestreamer

import "sort"

// A Run holds one digital output at a fixed level for Duration nanoseconds.
type Run struct {
	Duration int64
	High     bool
}

// A Pattern is the run-length description of one digital output.
type Pattern []Run

// Duration returns the length of p in nanoseconds.
func (p Pattern) Duration() int64 {
	var d int64
	for _, r := range p {
		d += r.Duration
	}
	return d
}

// A Block is the compiled form of one sequence block.
type Block struct {
	Name string
	// Patterns maps output numbers to their patterns. Every pattern lasts at
	// most Duration; shorter ones are held low to the end of the block.
	Patterns map[int]Pattern
	Duration int64
}

// A Program is a compiled PulseStreamer sequence.
type Program struct {
	Blocks  map[string]*Block
	Order   []string
	Repeats []int
}

// Outputs returns the outputs driven by any block, sorted.
func (p *Program) Outputs() []int {
	seen := make(map[int]bool)
	var r []int
	for _, b := range p.Blocks {
		for o := range b.Patterns {
			if !seen[o] {
				seen[o] = true
				r = append(r, o)
			}
		}
	}
	sort.Ints(r)
	return r
}

// Duration returns the length of one pass through the program in
// nanoseconds.
func (p *Program) Duration() int64 {
	var d int64
	for i, name := range p.Order {
		d += int64(p.Repeats[i]) * p.Blocks[name].Duration
	}
	return d
}

// Pattern returns the pattern of output o over a full pass through the
// program, with adjacent runs of equal level merged.
func (p *Program) Pattern(o int) Pattern {
	var r Pattern
	add := func(run Run) {
		if run.Duration <= 0 {
			return
		}
		if n := len(r); n > 0 && r[n-1].High == run.High {
			r[n-1].Duration += run.Duration
			return
		}
		r = append(r, run)
	}
	for i, name := range p.Order {
		b := p.Blocks[name]
		pat := b.Patterns[o]
		for k := 0; k < p.Repeats[i]; k++ {
			for _, run := range pat {
				add(run)
			}
			add(Run{Duration: b.Duration - pat.Duration()})
		}
	}
	return r
}
