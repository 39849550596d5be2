package guap

import (
	"guapassist-backend/lib/htmlutil"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	dayLinkRegex = regexp.MustCompile(`schedule/day/(\d{4}-\d{2}-\d{2})`)
	roomRegex    = regexp.MustCompile(`[\d-]`)
)

var dayOrder = map[string]int{
	"Пн": 1,
	"Вт": 2,
	"Ср": 3,
	"Чт": 4,
	"Пт": 5,
	"Сб": 6,
	"Вс": 7,
}

// dayRank puts unknown day names after Sunday.
func dayRank(name string) int {
	if rank, ok := dayOrder[name]; ok {
		return rank
	}
	return len(dayOrder) + 1
}

// SortDays orders days Monday to Sunday, keeping the order of unknown names.
func SortDays(days []ScheduleDay) {
	sort.SliceStable(days, func(i, j int) bool {
		return dayRank(days[i].Name) < dayRank(days[j].Name)
	})
}

// splitLocation splits "building, room". Without a comma the last word is
// taken as the room if it looks like one.
func splitLocation(text string) (building, room string) {
	text = htmlutil.Clean(text)
	if text == "" {
		return "", ""
	}
	if before, after, ok := strings.Cut(text, ","); ok {
		return strings.TrimSpace(before), strings.TrimSpace(strings.ReplaceAll(after, "*", ""))
	}
	text = strings.TrimSpace(strings.ReplaceAll(text, "*", ""))
	words := strings.Fields(text)
	if len(words) > 1 && roomRegex.MatchString(words[len(words)-1]) {
		return strings.Join(words[:len(words)-1], " "), words[len(words)-1]
	}
	return text, ""
}

func parseClassCell(cell *goquery.Selection) ScheduleClass {
	class := ScheduleClass{}

	badge := cell.Find(".badge.bg-primary").First()
	if badge.Length() == 0 {
		badge = cell.Find(".badge").Not(".bg-dark").First()
	}
	class.Type = htmlutil.Text(badge)
	class.Subject = htmlutil.Text(cell.Find(".fw-bolder"))

	teacher := cell.Find(`[class*="teacher"], .short-teacher`).First()
	class.Teacher = htmlutil.LeadingText(teacher)
	if info := teacher.Find("span").First(); info.Length() > 0 {
		class.TeacherInfo = strings.TrimSpace(strings.NewReplacer("(", "", ")", "").Replace(htmlutil.Text(info)))
	}

	class.Group = htmlutil.Text(cell.Find(".badge.bg-dark"))
	class.Building, class.Room = splitLocation(htmlutil.FollowingText(cell.Find(".bi-geo-alt")))
	return class
}

func hasNoClasses(text string) bool {
	text = strings.ToLower(text)
	return strings.Contains(text, "нет занятий") || strings.Contains(text, "занятий не найдено")
}

func scheduleTables(doc *goquery.Document) *goquery.Selection {
	return doc.Find("table.table-bordered")
}

type WeekSchedule struct {
	Days         []ScheduleDay   `json:"days"`
	ExtraClasses []ScheduleClass `json:"extra_classes"`
}

func parseDayHeader(header *goquery.Selection) ScheduleDay {
	day := ScheduleDay{Classes: []ScheduleClass{}}

	link := header.Find("a").First()
	text := htmlutil.Text(link)
	if text == "" {
		text = htmlutil.Text(header)
	}
	if name, date, ok := strings.Cut(text, "-"); ok {
		day.Name = strings.TrimSpace(name)
		day.Date = strings.TrimSpace(date)
	} else {
		day.Name = text
	}

	href, _ := link.Attr("href")
	if match := dayLinkRegex.FindStringSubmatch(href); match != nil {
		day.FullDate = match[1]
	}
	return day
}

// ParseWeekSchedule parses the weekly grid and the table of classes outside
// of it. Only days that have classes are returned, Monday first.
func ParseWeekSchedule(doc *goquery.Document) WeekSchedule {
	result := WeekSchedule{
		Days:         []ScheduleDay{},
		ExtraClasses: []ScheduleClass{},
	}

	tables := scheduleTables(doc)
	if tables.Length() == 0 {
		return result
	}
	grid := tables.First()

	days := []ScheduleDay{}
	grid.Find("thead th").Each(func(i int, header *goquery.Selection) {
		if i < 2 {
			return
		}
		days = append(days, parseDayHeader(header))
	})

	grid.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < 2 || !cells.Eq(0).HasClass("text-center") {
			return
		}
		pair := htmlutil.Text(cells.Eq(0))
		timeRange := htmlutil.Text(cells.Eq(1))

		for i := range days {
			cell := cells.Eq(i + 2)
			if cell.Length() == 0 || htmlutil.Text(cell) == "" {
				continue
			}
			class := parseClassCell(cell)
			class.PairNumber = pair
			class.TimeRange = timeRange
			days[i].Classes = append(days[i].Classes, class)
		}
	})

	for _, day := range days {
		if len(day.Classes) > 0 {
			result.Days = append(result.Days, day)
		}
	}
	SortDays(result.Days)

	if tables.Length() > 1 {
		tables.Eq(1).Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
			cell := row.ChildrenFiltered("td").First()
			if cell.Length() == 0 || htmlutil.Text(cell) == "" {
				return
			}
			result.ExtraClasses = append(result.ExtraClasses, parseClassCell(cell))
		})
	}
	return result
}

// ParseDaySchedule parses the classes of a single day, the "no classes"
// alert gives an empty list.
func ParseDaySchedule(doc *goquery.Document) []ScheduleClass {
	classes := []ScheduleClass{}
	if doc.Find(".alert.alert-info").Length() > 0 {
		return classes
	}

	scheduleTables(doc).First().Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < 3 {
			return
		}
		cell := cells.Eq(2)
		text := htmlutil.Text(cell)
		if text == "" || hasNoClasses(text) {
			return
		}

		class := parseClassCell(cell)
		class.PairNumber = htmlutil.Text(cells.Eq(0))
		class.TimeRange = htmlutil.Text(cells.Eq(1))
		classes = append(classes, class)
	})
	return classes
}
