package sample

import (
	"fmt"
	"math"
)

// EmptyResultCodeSetError is returned when a test label's result codes are exhausted
// while a sample still needs one.
type EmptyResultCodeSetError struct {
	TestLabel string
}

func (e *EmptyResultCodeSetError) Error() string {
	return fmt.Sprintf("no result code left for test label %q", e.TestLabel)
}

// CodeCount is one code of a counted result-code set.
type CodeCount struct {
	Code  string
	Count int
}

// ResultCodes is an ordered multiset of result codes read through a single-pass cursor.
// Codes are stored as counted runs, so a large count costs no more than a small one.
// It is not safe for concurrent use.
type ResultCodes struct {
	runs   []CodeCount
	pair   int // run the cursor is in
	repeat int // codes already drawn from runs[pair]
}

// NewResultCodes returns a cursor over codes in the given order. Repeated codes are kept.
func NewResultCodes(codes ...string) *ResultCodes {
	rc := &ResultCodes{}
	for _, code := range codes {
		if n := len(rc.runs); n > 0 && rc.runs[n-1].Code == code {
			rc.runs[n-1].Count++
			continue
		}
		rc.runs = append(rc.runs, CodeCount{Code: code, Count: 1})
	}
	return rc
}

// CountedResultCodes enumerates counted codes in order, each repeated Count times.
// Entries with a non-positive count contribute nothing.
func CountedResultCodes(counts ...CodeCount) *ResultCodes {
	rc := &ResultCodes{runs: make([]CodeCount, 0, len(counts))}
	for _, c := range counts {
		if c.Count > 0 {
			rc.runs = append(rc.runs, c)
		}
	}
	return rc
}

// Next returns the next code and advances the cursor. It reports false once exhausted.
func (rc *ResultCodes) Next() (string, bool) {
	if rc == nil || rc.pair >= len(rc.runs) {
		return "", false
	}
	run := rc.runs[rc.pair]
	rc.repeat++
	if rc.repeat >= run.Count {
		rc.pair++
		rc.repeat = 0
	}
	return run.Code, true
}

// Remaining reports how many codes can still be drawn, saturating at math.MaxInt.
func (rc *ResultCodes) Remaining() int {
	if rc == nil || rc.pair >= len(rc.runs) {
		return 0
	}
	return sumCounts(rc.runs[rc.pair:]) - rc.repeat
}

// Len reports the total number of codes, drawn or not, saturating at math.MaxInt.
func (rc *ResultCodes) Len() int {
	if rc == nil {
		return 0
	}
	return sumCounts(rc.runs)
}

// Counts returns a copy of the codes as counted runs in enumeration order.
func (rc *ResultCodes) Counts() []CodeCount {
	if rc == nil {
		return nil
	}
	return append([]CodeCount(nil), rc.runs...)
}

func sumCounts(runs []CodeCount) int {
	total := 0
	for _, r := range runs {
		if total > math.MaxInt-r.Count {
			return math.MaxInt
		}
		total += r.Count
	}
	return total
}
