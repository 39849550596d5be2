package guap

import (
	"guapassist-backend/lib/htmlutil"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	totalFullRegex  = regexp.MustCompile(`Всего\s+(\d+)\s+записей`)
	totalShortRegex = regexp.MustCompile(`(\d+)\s+записей`)
	numberRegex     = regexp.MustCompile(`\d+`)
	digitsRegex     = regexp.MustCompile(`^\d+$`)
)

var totalFallbackSelectors = []string{".dataTables_info", ".pagination-info", ".total-records"}

// ParseTotal reads the record count of a paginated table from its summary
// label, 0 means the count is unknown.
func ParseTotal(doc *goquery.Document) int {
	label := doc.Find(".float-start").First()
	if label.Length() > 0 {
		text := htmlutil.Text(label)
		for _, re := range []*regexp.Regexp{totalFullRegex, totalShortRegex} {
			if match := re.FindStringSubmatch(text); match != nil {
				return atoi(match[1])
			}
		}
		if match := numberRegex.FindString(text); match != "" {
			return atoi(match)
		}
	}

	for _, selector := range totalFallbackSelectors {
		el := doc.Find(selector).First()
		if el.Length() == 0 {
			continue
		}
		if match := totalShortRegex.FindStringSubmatch(htmlutil.Text(el)); match != nil {
			return atoi(match[1])
		}
	}
	return 0
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func classAttr(sel *goquery.Selection) string {
	class, _ := sel.Attr("class")
	return strings.Join(strings.Fields(class), " ")
}

func dataRows(doc *goquery.Document) *goquery.Selection {
	return doc.Find("table").First().Find("tbody tr")
}

// ParseTasks parses the rows of the assignments table on the current page.
// Rows that are too short to be an assignment, like the "no entries" row,
// are skipped.
func ParseTasks(base *url.URL, doc *goquery.Document) []Task {
	tasks := []Task{}
	dataRows(doc).Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < 9 {
			return
		}

		task := Task{
			Score:    "0 / 0",
			Deadline: NoDeadline,
		}

		task.ActionLink = htmlutil.Href(base, cells.Eq(0).Find("a.btn"))

		subjectLinks := cells.Eq(1).Find("a.blue-link")
		task.Subject = htmlutil.Text(subjectLinks.Eq(0))
		task.SubjectLink = htmlutil.Href(base, subjectLinks.Eq(0))

		if number := htmlutil.Text(cells.Eq(2)); digitsRegex.MatchString(number) {
			task.Number = number
		}

		taskLink := cells.Eq(3).Find("a.link-switch-blue").First()
		task.Name = htmlutil.Text(taskLink)
		task.Link = htmlutil.Href(base, taskLink)

		badge := cells.Eq(4).Find(".badge").First()
		task.Status = htmlutil.Text(badge)
		task.StatusClass = classAttr(badge)

		if score := htmlutil.Text(cells.Eq(5)); strings.Contains(score, "/") {
			task.Score = score
		}

		task.Type = htmlutil.Text(cells.Eq(6))

		if deadline := cells.Eq(7).Find("span").First(); deadline.Length() > 0 {
			if text := htmlutil.Text(deadline); text != "" {
				task.Deadline = text
				task.DeadlineClass = classAttr(deadline)
			}
		}

		task.UpdatedAt = htmlutil.Text(cells.Eq(8).Find("time"))

		teacher := cells.Eq(9).Find("a.blue-link").First()
		if teacher.Length() == 0 && subjectLinks.Length() > 1 {
			teacher = subjectLinks.Eq(1)
		}
		task.Teacher = htmlutil.Text(teacher)
		task.TeacherLink = htmlutil.Href(base, teacher)

		if task.Subject == "" && task.Name == "" {
			return
		}
		tasks = append(tasks, task)
	})
	return tasks
}

// ParseReports parses the rows of the uploaded reports table on the current page.
func ParseReports(base *url.URL, doc *goquery.Document) []Report {
	reports := []Report{}
	dataRows(doc).Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < 7 {
			return
		}

		report := Report{Score: NoScore}

		report.DownloadLink = htmlutil.Href(base, cells.Eq(0).Find("a.btn-outline-dark"))
		report.RemoveLink = htmlutil.Href(base, cells.Eq(0).Find("a.btn-danger"))

		if number := htmlutil.Text(cells.Eq(1)); digitsRegex.MatchString(number) {
			report.Number = number
		}

		taskLink := cells.Eq(2).Find("a.blue-link").First()
		report.TaskName = htmlutil.Text(taskLink)
		report.TaskLink = htmlutil.Href(base, taskLink)

		teacher := cells.Eq(3).Find("a.blue-link").First()
		report.Teacher = htmlutil.Text(teacher)
		report.TeacherLink = htmlutil.Href(base, teacher)

		badge := cells.Eq(4).Find(".badge").First()
		report.Status = htmlutil.Text(badge)
		report.StatusClass = classAttr(badge)

		if score := htmlutil.Text(cells.Eq(5)); score != "" {
			report.Score = score
		}
		report.UploadDate = htmlutil.Text(cells.Eq(6))

		if report.TaskName == "" {
			return
		}
		reports = append(reports, report)
	})
	return reports
}
