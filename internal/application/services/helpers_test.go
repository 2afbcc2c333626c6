package services_test

import (
	"sync"
	"time"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/question"
)

func newQuestion(id, domain string) question.Question {
	return question.Question{
		ID:     id,
		Domain: domain,
		Body: question.Body{
			Question:      "Question " + id,
			Choices:       map[string]string{"A": "1", "B": "2", "C": "3", "D": "4"},
			CorrectAnswer: "C",
		},
	}
}

func sampleBank() question.Bank {
	return question.Bank{
		question.SectionMath: {
			newQuestion("m1", question.DomainAlgebra),
			newQuestion("m2", question.DomainAlgebra),
			newQuestion("m3", question.DomainGeometry),
		},
		question.SectionEnglish: {
			newQuestion("e1", question.DomainCraftAndStructure),
			newQuestion("e2", question.DomainConventions),
		},
	}
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
