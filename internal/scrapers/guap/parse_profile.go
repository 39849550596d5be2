package guap

import (
	"guapassist-backend/lib/htmlutil"
	"guapassist-backend/lib/textutil"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var specialtyCodeRegex = regexp.MustCompile(`\d{2}\.\d{2}\.\d{2}`)

// ParseSpecialty splits "09.03.04 Программная инженерия" into its code and name.
func ParseSpecialty(text string) Specialty {
	text = htmlutil.Clean(text)
	specialty := Specialty{FullName: text, Name: text}
	if code := specialtyCodeRegex.FindString(text); code != "" {
		specialty.Code = code
		specialty.Name = strings.TrimSpace(strings.Replace(text, code, "", 1))
	}
	return specialty
}

var orderDateRegex = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4})`)

// AdmissionYear reads the year from the date of the enrollment order, ex.
// "№ 05-01/123 от 01.08.2022" gives 2022. It returns 0 if there is no date.
func (p Profile) AdmissionYear() int {
	match := orderDateRegex.FindStringSubmatch(p.EnrollmentOrder)
	if match == nil {
		return 0
	}
	year, err := strconv.Atoi(match[3])
	if err != nil {
		return 0
	}
	return year
}

type profileField struct {
	headings []string
	set      func(p *Profile, value string)
}

// profileFields are tried in order, the first field whose heading matches
// takes the value.
var profileFields = []profileField{
	{
		headings: []string{"Институт/факультет", "Институт"},
		set:      func(p *Profile, v string) { p.Institute = v },
	},
	{
		headings: []string{"Группа"},
		set:      func(p *Profile, v string) { p.Group = v },
	},
	{
		headings: []string{"Номер студенческого билета", "зачетной книжки"},
		set:      func(p *Profile, v string) { p.StudentID = v },
	},
	{
		headings: []string{"Специальность"},
		set:      func(p *Profile, v string) { p.Specialty = ParseSpecialty(v) },
	},
	{
		headings: []string{"Направленность"},
		set:      func(p *Profile, v string) { p.Direction = v },
	},
	{
		headings: []string{"Форма обучения"},
		set:      func(p *Profile, v string) { p.EducationForm = v },
	},
	{
		headings: []string{"Уровень профессионального образования", "Уровень образования"},
		set:      func(p *Profile, v string) { p.EducationLevel = v },
	},
	{
		headings: []string{"Статус"},
		set:      func(p *Profile, v string) { p.Status = v },
	},
	{
		headings: []string{"Приказ о зачислении"},
		set:      func(p *Profile, v string) { p.EnrollmentOrder = v },
	},
	{
		headings: []string{"Почта аккаунта"},
		set:      func(p *Profile, v string) { p.SecondaryEmail = v },
	},
	{
		headings: []string{"Email", "E-mail"},
		set:      func(p *Profile, v string) { p.PrimaryEmail = v },
	},
	{
		headings: []string{"Телефон"},
		set:      func(p *Profile, v string) { p.Phone = v },
	},
}

func profileItemValue(item, heading *goquery.Selection) string {
	if value := htmlutil.Text(heading.Find("span.fw-light")); value != "" {
		return value
	}
	return htmlutil.Text(item.Find(".small"))
}

// ParseProfile reads the profile page. Fields are found by the text of
// their headings so the order of the cards does not matter.
func ParseProfile(base *url.URL, doc *goquery.Document) Profile {
	profile := Profile{Cabinets: []Cabinet{}}

	profile.FullName = htmlutil.Text(doc.Find("h3.text-center"))
	if src, ok := doc.Find(".profile_image").First().Attr("src"); ok {
		profile.PhotoURL = htmlutil.AbsURL(base, src)
	}

	doc.Find(".card.shadow-sm .list-group-item").Each(func(_ int, item *goquery.Selection) {
		heading := item.Find("h5").First()
		if heading.Length() == 0 {
			return
		}
		label := htmlutil.OwnText(heading)
		if label == "" {
			label = htmlutil.Text(heading)
		}
		value := profileItemValue(item, heading)
		if value == "" {
			return
		}

		for _, field := range profileFields {
			if textutil.MatchName(label, field.headings) {
				field.set(&profile, value)
				return
			}
		}
	})

	doc.Find(`select[name="eid"] option`).Each(func(_ int, option *goquery.Selection) {
		id, _ := option.Attr("value")
		name := htmlutil.Text(option)
		if id == "" || name == "" {
			return
		}
		_, selected := option.Attr("selected")
		cabinet := Cabinet{ID: id, Name: name, Selected: selected}
		profile.Cabinets = append(profile.Cabinets, cabinet)
		if selected {
			current := cabinet
			profile.CurrentCabinet = &current
		}
	})
	return profile
}
