package guap

import (
	"fmt"
	"guapassist-backend/internal/scraperr"
	"guapassist-backend/lib/htmlutil"
	"guapassist-backend/lib/textutil"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const markCardSelector = ".card.shadow-sm.mb-2"

var leadingMarkRegex = regexp.MustCompile(`^([2-5])(\D|$)`)

var markWords = map[string]int{
	"отлично":             5,
	"хорошо":              4,
	"удовлетворительно":   3,
	"неудовлетворительно": 2,
}

// ClassifyMark derives the numeric value and status of a mark label.
func ClassifyMark(label string) (*int, MarkStatus) {
	normalized := strings.ToLower(htmlutil.Clean(label))
	normalized = strings.ReplaceAll(normalized, "ё", "е")

	switch {
	case strings.HasPrefix(normalized, "не зачтено"), normalized == "незачет":
		return nil, MarkFail
	case strings.HasPrefix(normalized, "зачтено"), normalized == "зачет":
		return nil, MarkPass
	}

	if match := leadingMarkRegex.FindStringSubmatch(normalized); match != nil {
		value, _ := strconv.Atoi(match[1])
		return &value, MarkGraded
	}
	if value, ok := markWords[normalized]; ok {
		return &value, MarkGraded
	}
	return nil, MarkNone
}

// splitTeacher splits "name - position" or "name, position".
func splitTeacher(text string) (name, position string) {
	text = htmlutil.Clean(text)
	for _, sep := range []string{" - ", " – ", ", "} {
		if before, after, ok := strings.Cut(text, sep); ok {
			return strings.TrimSpace(before), strings.Trim(strings.TrimSpace(after), "()")
		}
	}
	if before, after, ok := strings.Cut(text, " ("); ok {
		return strings.TrimSpace(before), strings.TrimSuffix(strings.TrimSpace(after), ")")
	}
	return text, ""
}

// ParseMarks parses every grade card, cards without a subject are skipped.
func ParseMarks(base *url.URL, doc *goquery.Document) []Mark {
	marks := []Mark{}
	doc.Find(markCardSelector).Each(func(_ int, card *goquery.Selection) {
		subject := card.Find("h5 a").First()
		mark := Mark{
			Subject: Subject{
				Name: htmlutil.Text(subject),
				URL:  htmlutil.Href(base, subject),
			},
			Teachers: []Teacher{},
			Label:    NoMark,
		}
		if mark.Subject.Name == "" {
			return
		}

		card.Find("p.small a.link-switch-blue").Each(func(_ int, link *goquery.Selection) {
			name, position := splitTeacher(link.Text())
			if name == "" {
				return
			}
			mark.Teachers = append(mark.Teachers, Teacher{
				Name:       name,
				Position:   position,
				ProfileURL: htmlutil.Href(base, link),
			})
		})

		mark.Semester = htmlutil.Text(card.Find(".float-end .mt-2"))
		mark.ControlType = htmlutil.Text(card.Find(".flexRow-baseline span.text-center"))

		label := card.Find(
			".flexRow-baseline span.text-warning, .flexRow-baseline span.text-success, .flexRow-baseline span.text-danger",
		).First()
		if text := htmlutil.Text(label); text != "" {
			mark.Label = text
			mark.Class = classAttr(label)
		}
		mark.Value, mark.Status = ClassifyMark(mark.Label)

		mark.Credits = htmlutil.Text(card.Find(".text-success").Not(".flexRow-baseline .text-success"))

		marks = append(marks, mark)
	})
	return marks
}

type FilterOption struct {
	Value    string `json:"value"`
	Text     string `json:"text"`
	Selected bool   `json:"selected"`
}

// MarkFilterOptions are the options of the filter selects of the grades page.
type MarkFilterOptions struct {
	Semesters    []FilterOption `json:"semesters"`
	ControlTypes []FilterOption `json:"control_types"`
	Teachers     []FilterOption `json:"teachers"`
	Marks        []FilterOption `json:"marks"`
}

func parseOptions(doc *goquery.Document, selectID string) []FilterOption {
	options := []FilterOption{}
	doc.Find(fmt.Sprintf("select#%s option", selectID)).Each(func(_ int, option *goquery.Selection) {
		value, _ := option.Attr("value")
		_, selected := option.Attr("selected")
		options = append(options, FilterOption{
			Value:    value,
			Text:     htmlutil.Text(option),
			Selected: selected,
		})
	})
	return options
}

func ParseMarkFilterOptions(doc *goquery.Document) MarkFilterOptions {
	return MarkFilterOptions{
		Semesters:    parseOptions(doc, "semester"),
		ControlTypes: parseOptions(doc, "contrType"),
		Teachers:     parseOptions(doc, "teacher"),
		Marks:        parseOptions(doc, "mark"),
	}
}

// MarkFilters narrow down the grades page. Every field is either an option
// value of the matching select or free text resolved against its options.
// Empty and "0" mean no filter.
type MarkFilters struct {
	Semester  string `json:"semester,omitempty"`
	ContrType string `json:"contr_type,omitempty"`
	Teacher   string `json:"teacher,omitempty"`
	Mark      string `json:"mark,omitempty"`
}

func isOptionValue(value string) bool {
	return value == "" || digitsRegex.MatchString(value)
}

// NeedsResolution returns true if any filter is free text.
func (f MarkFilters) NeedsResolution() bool {
	return !isOptionValue(f.Semester) ||
		!isOptionValue(f.ContrType) ||
		!isOptionValue(f.Teacher) ||
		!isOptionValue(f.Mark)
}

// Query encodes the filters into the query of the grades page.
func (f MarkFilters) Query() url.Values {
	query := url.Values{}
	set := func(key, value string) {
		if value != "" && value != "0" {
			query.Set(key, value)
		}
	}
	set("semester", f.Semester)
	set("contrType", f.ContrType)
	set("teacher", f.Teacher)
	set("mark", f.Mark)
	return query
}

// minFilterScore is the lowest similarity a free text filter may have with
// the option it resolves to.
const minFilterScore = 0.8

func resolveOption(name, value string, options []FilterOption) (string, error) {
	if isOptionValue(value) {
		return value, nil
	}
	texts := make([]string, len(options))
	for i, option := range options {
		texts[i] = option.Text
	}
	idx, score := textutil.BestMatch(value, texts)
	if idx < 0 || score < minFilterScore {
		return "", scraperr.Validation("engine.marks", fmt.Sprintf("no %s matches %q", name, value))
	}
	return options[idx].Value, nil
}

// Resolve replaces free text filters with the value of the most similar option.
func (o MarkFilterOptions) Resolve(f MarkFilters) (MarkFilters, error) {
	var err error
	out := MarkFilters{}
	if out.Semester, err = resolveOption("semester", f.Semester, o.Semesters); err != nil {
		return MarkFilters{}, err
	}
	if out.ContrType, err = resolveOption("control type", f.ContrType, o.ControlTypes); err != nil {
		return MarkFilters{}, err
	}
	if out.Teacher, err = resolveOption("teacher", f.Teacher, o.Teachers); err != nil {
		return MarkFilters{}, err
	}
	if out.Mark, err = resolveOption("mark", f.Mark, o.Marks); err != nil {
		return MarkFilters{}, err
	}
	return out, nil
}
