package question

import (
	"math/rand/v2"
	"slices"
	"time"
)

// Bank is the full question set keyed by section name.
type Bank map[string][]Question

// Picker returns a pseudo-random index in [0, n).
type Picker func(n int) int

func (p Picker) pick(n int) int {
	if p == nil {
		return rand.IntN(n)
	}
	return p(n)
}

// Sections returns the non-empty sections in lexical order.
func (b Bank) Sections() []string {
	out := make([]string, 0, len(b))
	for name, qs := range b {
		if len(qs) > 0 {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// Count returns the number of questions across all sections.
func (b Bank) Count() int {
	n := 0
	for _, qs := range b {
		n += len(qs)
	}
	return n
}

// TopicCounts groups question counts by section and domain.
func (b Bank) TopicCounts() map[string]map[string]int {
	out := make(map[string]map[string]int, len(b))
	for section, qs := range b {
		topics := make(map[string]int)
		for _, q := range qs {
			domain := q.Domain
			if domain == "" {
				domain = "unknown"
			}
			topics[domain]++
		}
		out[section] = topics
	}
	return out
}

// ResolveSection maps a requested section to one present in the bank: the
// requested one, then the canonical section of the topic, then its known
// aliases, then the first available section. ok is false on an empty bank.
func (b Bank) ResolveSection(topic, section string) (string, bool) {
	available := b.Sections()
	if len(available) == 0 {
		return "", false
	}
	if slices.Contains(available, section) {
		return section, true
	}
	if topic != "" {
		canonical := SectionForTopic(topic)
		candidates := append([]string{canonical}, sectionAlternatives[canonical]...)
		for _, c := range candidates {
			if slices.Contains(available, c) {
				return c, true
			}
		}
	}
	return available[0], true
}

// TopicQuestions returns the questions of section matching topic. The section
// is taken literally; no substitution happens here.
func (b Bank) TopicQuestions(topic, section string) []Question {
	var out []Question
	for _, q := range b[section] {
		if q.MatchesTopic(topic) {
			out = append(out, q)
		}
	}
	return out
}

// QuestionForTopic picks a random question for topic, substituting a section
// or the sample question when the bank does not have what was asked for.
func (b Bank) QuestionForTopic(topic, section string, p Picker) Question {
	resolved, ok := b.ResolveSection(topic, section)
	if !ok {
		return SampleQuestion()
	}
	candidates := b.TopicQuestions(topic, resolved)
	if len(candidates) == 0 {
		candidates = b[resolved]
	}
	q := candidates[p.pick(len(candidates))]
	if q.Validate() != nil {
		return SampleQuestion()
	}
	return q
}

// RandomQuestion picks a random section and then a random question in it.
func (b Bank) RandomQuestion(p Picker) Question {
	sections := b.Sections()
	if len(sections) == 0 {
		return SampleQuestion()
	}
	qs := b[sections[p.pick(len(sections))]]
	q := qs[p.pick(len(qs))]
	if q.Validate() != nil {
		return SampleQuestion()
	}
	return q
}

// DailyQuestion is stable for a calendar day: both the section and the
// question index derive from a hash of the UTC date.
func (b Bank) DailyQuestion(day time.Time) Question {
	sections := b.Sections()
	if len(sections) == 0 {
		return SampleQuestion()
	}
	seed := HashString(day.UTC().Format(time.DateOnly))
	qs := b[sections[seed%len(sections)]]
	q := qs[seed%len(qs)]
	if q.Validate() != nil {
		return SampleQuestion()
	}
	return q
}

// HashString is the 32-bit string hash the practice pages use to seed daily
// selection: h = h*31 + c with int32 wraparound, returned as an absolute value.
func HashString(s string) int {
	var h int32
	for _, c := range s {
		h = (h << 5) - h + int32(c)
	}
	if h < 0 {
		return -int(h)
	}
	return int(h)
}
