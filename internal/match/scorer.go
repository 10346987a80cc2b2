package match

import (
	"regexp"
	"strings"

	"github.com/sells-group/comps-cli/internal/model"
)

// Signal weights. The score is their plain sum; there is no cap.
const (
	WeightName     = 30
	WeightNumber   = 35
	WeightSet      = 15
	WeightYear     = 10
	WeightCategory = 6
	WeightGrading  = 6
)

// DefaultScoreGate is the minimum score for a listing to count as a comp.
const DefaultScoreGate = 50

// DefaultStopwords are tokens marking listings that are not a single copy of
// the item (lots, sealed product, reproductions, merchandise).
var DefaultStopwords = []string{
	"lot", "lots", "box", "boxes", "sealed", "reprint", "proxy", "bundle",
	"figure", "figurine", "plush", "custom", "replica", "orica", "repack",
	"booster", "binder", "sleeves", "coin", "code", "digital", "fake",
}

// GradingCompanies are grader codes that mark a slabbed copy on their own.
var GradingCompanies = []string{
	"psa", "bgs", "beckett", "cgc", "sgc", "hga", "csg", "gma", "ksa",
}

// GradeQualifiedCompanies are grader codes that are also ordinary listing
// words ("NM-MNT", "price tag"). They mark a slab only when a grade follows.
var GradeQualifiedCompanies = []string{"tag", "mnt"}

var (
	presalePattern = regexp.MustCompile(`(?i)` + wordStart + `(?:pre[\s-]?(?:order|sale|sell)s?|presales?|preorders?)` + wordEnd)
	gradePattern   = regexp.MustCompile(`(?i)` + wordStart + `(?:gem\s+mint|graded|grade)\s+(?:10|[1-9](?:\.5)?)` + wordEnd)
	qualifiedGrade = regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}/-])(?:` + strings.Join(GradeQualifiedCompanies, "|") + `)\s*(?:10|[1-9](?:\.5)?)` + wordEnd)
	numberShape    = regexp.MustCompile(`^([\p{L}]*)-?(\d+)([\p{L}]*)$`)
)

// Scorer scores listing titles for relevance to catalog items.
type Scorer struct {
	stopwords *regexp.Regexp
	grading   *regexp.Regexp
}

// NewScorer creates a Scorer. A nil or empty stopword list uses DefaultStopwords.
func NewScorer(stopwords []string) *Scorer {
	if len(stopwords) == 0 {
		stopwords = DefaultStopwords
	}
	return &Scorer{
		stopwords: anyWordPattern(stopwords),
		grading:   anyWordPattern(GradingCompanies),
	}
}

// Matcher holds the per-item expressions used to score titles. Build one per
// item and reuse it across that item's listings.
type Matcher struct {
	scorer   *Scorer
	name     *regexp.Regexp
	number   *regexp.Regexp
	set      *regexp.Regexp
	year     *regexp.Regexp
	category *regexp.Regexp
}

// ForItem compiles the item-specific expressions.
func (s *Scorer) ForItem(item model.CatalogItem) *Matcher {
	name := item.Player
	if strings.TrimSpace(name) == "" {
		name = item.Name
	}
	category := item.Sport
	if strings.TrimSpace(category) == "" {
		category = item.Category
	}

	var setToken string
	if fields := strings.Fields(Normalize(item.SetName)); len(fields) > 0 {
		setToken = fields[0]
	}

	return &Matcher{
		scorer:   s,
		name:     wordPattern(name),
		number:   NumberPattern(item.Number),
		set:      wordPattern(setToken),
		year:     wordPattern(item.Attr(model.AttrYear)),
		category: wordPattern(category),
	}
}

// Score evaluates title against item. Stopword and presale titles score 0
// with a reject reason regardless of any other signal.
func (s *Scorer) Score(item model.CatalogItem, title string) model.ScoredListing {
	return s.ForItem(item).Score(title)
}

// Score evaluates a single title.
func (m *Matcher) Score(title string) model.ScoredListing {
	out := model.ScoredListing{Listing: model.Listing{Title: title}}
	t := Normalize(title)

	if m.scorer.stopwords.MatchString(t) {
		out.RejectReason = model.RejectStopword
		return out
	}
	if presalePattern.MatchString(t) {
		out.RejectReason = model.RejectPresale
		return out
	}

	score := 0
	if matches(m.name, t) {
		score += WeightName
	}
	if matches(m.number, t) {
		score += WeightNumber
	}
	if matches(m.set, t) {
		score += WeightSet
	}
	if matches(m.year, t) {
		score += WeightYear
	}
	if matches(m.category, t) {
		score += WeightCategory
	}
	if m.scorer.grading.MatchString(t) || gradePattern.MatchString(t) || qualifiedGrade.MatchString(t) {
		score += WeightGrading
		out.Graded = true
	}

	out.Score = score
	return out
}

func matches(re *regexp.Regexp, s string) bool {
	return re != nil && re.MatchString(s)
}

// NumberPattern compiles the boundary-exact matcher for an item number. It
// accepts "#N", bare "N", fractions "N/M", leading zeros on the numeric part,
// and alphanumeric serials such as "TG05" or "4a". A number is never matched
// as the denominator of a fraction.
func NumberPattern(number string) *regexp.Regexp {
	n := Normalize(number)
	n = strings.TrimPrefix(n, "#")
	if i := strings.Index(n, "/"); i >= 0 {
		n = n[:i]
	}
	n = strings.TrimSpace(n)
	if n == "" {
		return nil
	}

	var core string
	if m := numberShape.FindStringSubmatch(n); m != nil {
		digits := strings.TrimLeft(m[2], "0")
		if digits == "" {
			digits = "0"
		}
		core = regexp.QuoteMeta(m[1])
		if m[1] != "" {
			core += `-?`
		}
		core += `0*` + digits + regexp.QuoteMeta(m[3])
	} else {
		core = regexp.QuoteMeta(n)
	}

	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}/])#?` + core + `(?:/[\p{L}\p{N}]+)?(?:$|[^\p{L}\p{N}/])`)
}
