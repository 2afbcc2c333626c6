package question

import "strings"

const (
	SectionMath    = "math"
	SectionEnglish = "english"
)

// Official SAT domain names as they appear in the question bank.
const (
	DomainAlgebra             = "Algebra"
	DomainProblemSolving      = "Problem-Solving and Data Analysis"
	DomainAdvancedMath        = "Advanced Math"
	DomainGeometry            = "Geometry and Trigonometry"
	DomainInformationAndIdeas = "Information and Ideas"
	DomainCraftAndStructure   = "Craft and Structure"
	DomainExpressionOfIdeas   = "Expression of Ideas"
	DomainConventions         = "Standard English Conventions"
)

// Domains lists the domains of each section in display order.
var Domains = map[string][]string{
	SectionMath:    {DomainAlgebra, DomainProblemSolving, DomainAdvancedMath, DomainGeometry},
	SectionEnglish: {DomainInformationAndIdeas, DomainCraftAndStructure, DomainExpressionOfIdeas, DomainConventions},
}

// progressKeyToDomain maps the short topic keys used by the front-end to domains.
var progressKeyToDomain = map[string]string{
	"algebra":         DomainAlgebra,
	"problem-solving": DomainProblemSolving,
	"advanced-math":   DomainAdvancedMath,
	"geometry":        DomainGeometry,
	"reading":         DomainInformationAndIdeas,
	"craft":           DomainCraftAndStructure,
	"writing":         DomainExpressionOfIdeas,
	"grammar":         DomainConventions,
}

// Alternative section names seen in older exports of the bank.
var sectionAlternatives = map[string][]string{
	SectionMath:    {"mathematics", "maths", "math_section"},
	SectionEnglish: {"verbal", "reading", "english_section"},
}

// DomainForTopic resolves a topic given either as a progress key or as a
// domain name. Unknown topics are returned unchanged.
func DomainForTopic(topic string) string {
	if d, ok := progressKeyToDomain[strings.ToLower(topic)]; ok {
		return d
	}
	return topic
}

// ProgressKey returns the short key for a domain, or "" when unknown.
func ProgressKey(domain string) string {
	for k, d := range progressKeyToDomain {
		if strings.EqualFold(d, domain) {
			return k
		}
	}
	return ""
}

// SectionForDomain reports the section owning a domain. Anything that is not
// a math domain is treated as english.
func SectionForDomain(domain string) string {
	for _, d := range Domains[SectionMath] {
		if strings.EqualFold(d, domain) {
			return SectionMath
		}
	}
	return SectionEnglish
}

// SectionForTopic reports the section a topic (key or domain) belongs to.
func SectionForTopic(topic string) string {
	return SectionForDomain(DomainForTopic(topic))
}

// MatchesTopic reports whether q belongs to topic using the same lenient
// matching the practice page applies: exact, case-insensitive, substring of
// the domain name, or substring of the raw topic.
func (q *Question) MatchesTopic(topic string) bool {
	if q.Domain == "" {
		return false
	}
	domain := DomainForTopic(topic)
	lower := strings.ToLower(q.Domain)
	return q.Domain == domain ||
		lower == strings.ToLower(domain) ||
		strings.Contains(q.Domain, domain) ||
		strings.Contains(lower, strings.ToLower(topic))
}
