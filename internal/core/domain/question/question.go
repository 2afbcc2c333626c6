package question

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidQuestion = errors.New("invalid question")
	ErrInvalidBank     = errors.New("invalid question bank")
)

// Question mirrors one entry of the upstream question bank.
type Question struct {
	ID         string  `json:"id"`
	Domain     string  `json:"domain"`
	Visuals    Visuals `json:"visuals"`
	Body       Body    `json:"question"`
	Difficulty string  `json:"difficulty,omitempty"`
}

type Visuals struct {
	Type       string `json:"type"`
	SVGContent string `json:"svg_content"`
}

type Body struct {
	Question      string            `json:"question"`
	Paragraph     string            `json:"paragraph,omitempty"`
	Choices       map[string]string `json:"choices"`
	CorrectAnswer string            `json:"correct_answer"`
	Explanation   string            `json:"explanation,omitempty"`
}

// Validate rejects records that cannot be rendered or graded.
func (q *Question) Validate() error {
	if q == nil {
		return fmt.Errorf("%w: nil question", ErrInvalidQuestion)
	}
	if strings.TrimSpace(q.Body.Question) == "" {
		return fmt.Errorf("%w: empty question text", ErrInvalidQuestion)
	}
	if len(q.Body.Choices) == 0 {
		return fmt.Errorf("%w: no choices", ErrInvalidQuestion)
	}
	if q.Body.CorrectAnswer == "" {
		return fmt.Errorf("%w: missing correct answer", ErrInvalidQuestion)
	}
	if _, ok := q.Body.Choices[q.Body.CorrectAnswer]; !ok {
		return fmt.Errorf("%w: correct answer %q is not a choice", ErrInvalidQuestion, q.Body.CorrectAnswer)
	}
	return nil
}

// CheckAnswer compares an answer letter case-insensitively.
func (q *Question) CheckAnswer(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), q.Body.CorrectAnswer)
}

// SampleQuestion is served when no usable question can be found.
func SampleQuestion() Question {
	return Question{
		ID:     "d0d9ede4",
		Domain: DomainProblemSolving,
		Visuals: Visuals{
			Type:       "image",
			SVGContent: "https://via.placeholder.com/400x200?text=Example+Math+Problem",
		},
		Body: Body{
			Question:  "How many feet are equivalent to 34 yards? (1 yard = 3 feet)",
			Paragraph: "The yard (abbreviation: yd) is an English unit of length, in both the British imperial and US customary systems of measurement, that comprises 3 feet or 36 inches.",
			Choices:   map[string]string{"A": "10", "B": "17", "C": "31", "D": "102"},
			Explanation: "It's given that 1 yard is equivalent to 3 feet. Therefore, 34 yards is equivalent to " +
				"$(34 \\text{ yards}) \\times (3 \\text{ feet} / 1 \\text{ yard}) = 102 \\text{ feet}$.",
			CorrectAnswer: "D",
		},
		Difficulty: "Easy",
	}
}
