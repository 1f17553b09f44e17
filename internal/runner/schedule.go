package runner

import "time"

// phase is a linear rate segment starting at offset start.
type phase struct {
	start    time.Duration
	length   time.Duration
	from, to float64
}

// schedule is the ordered list of phases compiled from load patterns.
type schedule struct {
	phases []phase
	total  time.Duration
}

// newSchedule returns nil when no pattern yields a phase with a positive duration.
func newSchedule(patterns []LoadPattern) *schedule {
	s := &schedule{}
	for _, p := range patterns {
		switch p.Type {
		case LoadPatternTypeRamp:
			s.add(p.Duration, p.FromRPS, p.ToRPS)
		case LoadPatternTypeStep:
			for _, st := range p.Steps {
				s.add(st.Duration, st.RPS, st.RPS)
			}
		case LoadPatternTypeSpike:
			s.add(p.Duration, p.RPS, p.RPS)
		}
	}
	if len(s.phases) == 0 {
		return nil
	}
	return s
}

func (s *schedule) add(length time.Duration, from, to int) {
	if length <= 0 {
		return
	}
	s.phases = append(s.phases, phase{start: s.total, length: length, from: float64(from), to: float64(to)})
	s.total += length
}

// rateAt returns the target rate at elapsed, and false once the schedule is over.
func (s *schedule) rateAt(elapsed time.Duration) (float64, bool) {
	if s == nil || elapsed >= s.total {
		return 0, false
	}
	elapsed = max(elapsed, 0)
	for _, ph := range s.phases {
		if elapsed >= ph.start+ph.length {
			continue
		}
		progress := float64(elapsed-ph.start) / float64(ph.length)
		return ph.from + (ph.to-ph.from)*progress, true
	}
	return 0, false
}
