package model

import "fmt"

// Block is a half-open interval [Start, End) of candidates searched by one task.
type Block struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Len returns the number of candidates in the block.
func (b Block) Len() int64 {
	if b.End <= b.Start {
		return 0
	}
	return b.End - b.Start
}

// Contains reports whether n lies inside the block.
func (b Block) Contains(n int64) bool {
	return n >= b.Start && n < b.End
}

// Before reports whether b starts below other.
func (b Block) Before(other Block) bool {
	return b.Start < other.Start
}

func (b Block) String() string {
	return fmt.Sprintf("[%d, %d)", b.Start, b.End)
}
