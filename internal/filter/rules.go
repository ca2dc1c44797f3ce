package filter

import "strings"

// Rule is a named reject-only override applied after the classifier stage.
// Rules can veto an accepted item but never resurrect a rejected one.
type Rule interface {
	Name() string
	Reject(text string) bool
}

var promoTerms = []string{
	"training", "course", "courses", "bootcamp", "boot camp", "enroll", "enrollment", "register", "registration",
	"demo", "free demo", "webinar", "workshop", "tutorial", "class", "classes", "coaching", "mentorship",
	"certificate", "certification", "mock interview", "interview prep", "interview preparation",
	"linkedin optimization", "resume service", "resume writing", "cv writing", "portfolio review", "career guidance",
	"placement assistance", "job support", "proxy support", "support available", "training batch", "new batch",
	"promo", "promotion", "offer", "discount", "sale", "paid course", "learn", "learning", "upskill", "reskill",
	"join our training", "guaranteed placement", "internship training", "fee", "fees", "tuition",
}

var hiringTerms = []string{
	"hiring", "actively hiring", "hiring now", "we are hiring", "we're hiring", "immediate hiring",
	"opening", "openings", "job opening", "job openings", "position", "positions", "role", "roles",
	"vacancy", "vacancies", "vacant", "opportunity", "opportunities", "apply", "apply now", "send resume",
	"send cv", "share resume", "share your resume", "resume to", "cv to", "email your resume", "refer candidates",
	"looking for", "we are looking for", "seeking", "need", "required", "requirement", "requirements",
	"recruiting", "recruitment", "recruiter", "talent acquisition",
	"contract", "c2c", "w2", "1099", "full-time", "full time", "fulltime", "part-time", "part time", "parttime",
	"contract to hire", "contract-to-hire", "temp to perm", "temp-to-perm", "immediate joiners", "start asap",
	"onsite", "on-site", "remote", "remote only", "hybrid", "work from home",
}

// PromoRule rejects promotional/training posts that carry no hiring signal.
// Extra terms from configuration extend the built-in vocabularies.
type PromoRule struct {
	promo  []string
	hiring []string
}

// NewPromoRule builds the promo override with optional extra vocabulary.
func NewPromoRule(extraPromo, extraHiring []string) *PromoRule {
	return &PromoRule{
		promo:  append(append([]string(nil), promoTerms...), extraPromo...),
		hiring: append(append([]string(nil), hiringTerms...), extraHiring...),
	}
}

func (r *PromoRule) Name() string { return "promo-override" }

func (r *PromoRule) Reject(text string) bool {
	low := strings.ToLower(text)
	return containsAny(low, r.promo) && !containsAny(low, r.hiring)
}

// LocationRule rejects posts that mention a disallowed locale marker.
type LocationRule struct {
	markers []string
}

// NewLocationRule builds the location override. An empty marker list
// defaults to excluding Puerto Rico.
func NewLocationRule(markers []string) *LocationRule {
	if len(markers) == 0 {
		markers = []string{"puerto rico", "#hpepuertorico"}
	}
	low := make([]string, len(markers))
	for i, m := range markers {
		low[i] = strings.ToLower(m)
	}
	return &LocationRule{markers: low}
}

func (r *LocationRule) Name() string { return "location-override" }

func (r *LocationRule) Reject(text string) bool {
	return containsAny(strings.ToLower(text), r.markers)
}

func containsAny(low string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(low, t) {
			return true
		}
	}
	return false
}
