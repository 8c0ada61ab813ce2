package analyzer

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/YKarmar/JobTracker/internal/mailparse"
	"github.com/YKarmar/JobTracker/internal/types"
)

// DefaultKeywords decide relevance when the config lists none.
var DefaultKeywords = []string{"application", "applied", "applying", "interview", "offer", "position"}

const (
	DefaultSnippetLength = 200
	maxFieldLength       = 120
)

// Config controls extraction.
type Config struct {
	Keywords          []string
	SnippetLength     int
	Location          *time.Location
	CompanyFromSender bool
}

// JobAnalyzer classifies messages and extracts application records.
type JobAnalyzer struct {
	cfg Config
}

// NewJobAnalyzer fills defaults for zero config fields.
func NewJobAnalyzer(cfg Config) *JobAnalyzer {
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = DefaultKeywords
	}
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = DefaultSnippetLength
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &JobAnalyzer{cfg: cfg}
}

// Keywords returns the relevance keywords in effect.
func (ja *JobAnalyzer) Keywords() []string {
	return append([]string(nil), ja.cfg.Keywords...)
}

// IsJobRelated reports whether subject or body contains a keyword.
func (ja *JobAnalyzer) IsJobRelated(msg types.Message) bool {
	return types.ContainsAny(msg.Subject, ja.cfg.Keywords) ||
		types.ContainsAny(mailparse.PlainText(msg), ja.cfg.Keywords)
}

// AnalyzeJobEmail extracts a record from a message already known to be
// relevant. Missing pieces are left empty.
func (ja *JobAnalyzer) AnalyzeJobEmail(msg types.Message) types.ApplicationRecord {
	body := mailparse.PlainText(msg)
	company, title := extractCompanyTitle(msg.Subject, body)
	if company == "" && ja.cfg.CompanyFromSender {
		company = companyFromSender(msg.From)
	}

	return types.ApplicationRecord{
		MessageID: msg.ID,
		Company:   company,
		JobTitle:  title,
		Date:      calendarDate(msg.Date, ja.cfg.Location),
		Status:    detectStatus(withoutField(msg.Subject+"\n"+body, title)),
		Snippet:   truncateText(body, ja.cfg.SnippetLength),
	}
}

// Analyze returns the record for msg, or false when msg is not relevant.
func (ja *JobAnalyzer) Analyze(msg types.Message) (types.ApplicationRecord, bool) {
	if !ja.IsJobRelated(msg) {
		return types.ApplicationRecord{}, false
	}
	return ja.AnalyzeJobEmail(msg), true
}

func calendarDate(t time.Time, loc *time.Location) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Field patterns, tried in order over the subject and then the body.
type fieldPattern struct {
	re      *regexp.Regexp
	company int
	title   int
}

// A field ends at punctuation, a dash, the end of the line, or the verb
// that follows a name ("Acme has received").
const fieldEnd = `\s*(?:[.!,;()|]|\s-\s|\s+(?:has|have|had|was|were|is|are|will)\b|$)`

var fieldPatterns = []fieldPattern{
	{regexp.MustCompile(`(?im)thanks?(?: you)? for applying (?:to|at|with) (.+?) for (?:the )?(.+?)(?: position| role)?` + fieldEnd), 1, 2},
	{regexp.MustCompile(`(?im)your application (?:to|at|with) (.+?) for (?:the )?(.+?)(?: position| role)?` + fieldEnd), 1, 2},
	{regexp.MustCompile(`(?im)(?:application|applying|applied) for (?:the )?(.+?)(?: position| role)? (?:at|with) (.+?)` + fieldEnd), 2, 1},
	{regexp.MustCompile(`(?im)(?:thanks?(?: you)? for applying|your application|you applied) (?:to|at|with) (.+?)` + fieldEnd), 1, 0},
	{regexp.MustCompile(`(?im)(?:application|applied) for (?:the )?(.+?)(?: position| role)?` + fieldEnd), 0, 1},
	{regexp.MustCompile(`(?im)\b(?:position|role|job title)\s*[:\-]\s*(.+?)` + fieldEnd), 0, 1},
}

func extractCompanyTitle(subject, body string) (company, title string) {
	for _, text := range []string{subject, body} {
		for _, p := range fieldPatterns {
			if company != "" && title != "" {
				return company, title
			}
			m := p.re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			if company == "" && p.company > 0 {
				company = cleanField(m[p.company])
			}
			if title == "" && p.title > 0 {
				title = cleanField(m[p.title])
			}
		}
	}
	return company, title
}

func cleanField(s string) string {
	s = cleanText(s)
	s = strings.Trim(s, ` -:"'“”`)
	return truncateText(s, maxFieldLength)
}

// Status lookup, first status whose patterns match wins.
type statusRule struct {
	status   types.Status
	patterns []*regexp.Regexp
}

var statusRules = []statusRule{
	{types.StatusInterview, compileAll(`\binterview`, `\bphone screen\b`)},
	{types.StatusRejected, compileAll(`\bunfortunately\b`, `\bnot moving forward\b`, `\bnot selected\b`, `\bwe regret\b`, `\brejected\b`)},
	{types.StatusOffer, compileAll(`\boffer\b`, `\boffer letter\b`)},
	{types.StatusApplied, compileAll(`\bapplied\b`, `\breceived your application\b`, `\bthank(?:s| you) for applying\b`, `\bapplication (?:received|submitted)\b`)},
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// withoutField blanks every occurrence of an extracted field so that a job
// title such as "Offer Analyst" does not decide the status.
func withoutField(text, field string) string {
	if strings.TrimSpace(field) == "" {
		return text
	}
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(field))
	return re.ReplaceAllString(text, " ")
}

// detectStatus returns the first status with a matching pattern.
func detectStatus(text string) types.Status {
	for _, rule := range statusRules {
		for _, p := range rule.patterns {
			if p.MatchString(text) {
				return rule.status
			}
		}
	}
	return types.StatusUnknown
}

var senderPrefixes = regexp.MustCompile(`^(?:mail|no-?reply|jobs|careers|talent|hr|recruiting)\.`)

// companyFromSender guesses a company from the sender display name or domain.
func companyFromSender(from string) string {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return ""
	}
	if name := cleanText(addr.Name); name != "" {
		return truncateText(name, maxFieldLength)
	}
	at := strings.LastIndex(addr.Address, "@")
	if at < 0 {
		return ""
	}
	domain := senderPrefixes.ReplaceAllString(strings.ToLower(addr.Address[at+1:]), "")
	name, _, _ := strings.Cut(domain, ".")
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// truncateText cuts text to maxLen runes.
func truncateText(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	r := []rune(text)
	return strings.TrimSpace(string(r[:maxLen]))
}

var spaceRe = regexp.MustCompile(`\s+`)

func cleanText(text string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}
