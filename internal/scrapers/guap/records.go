package guap

// Task is one row of the assignments table.
type Task struct {
	Subject     string `json:"subject"`
	SubjectLink string `json:"subject_link,omitempty"`
	Number      string `json:"number,omitempty"`
	Name        string `json:"name"`
	Link        string `json:"link,omitempty"`
	ActionLink  string `json:"action_link,omitempty"`
	Status      string `json:"status,omitempty"`
	StatusClass string `json:"status_class,omitempty"`
	// Score is "earned / max" as the portal renders it.
	Score         string `json:"score"`
	Type          string `json:"type,omitempty"`
	Deadline      string `json:"deadline"`
	DeadlineClass string `json:"deadline_class,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
	Teacher       string `json:"teacher,omitempty"`
	TeacherLink   string `json:"teacher_link,omitempty"`
}

// NoDeadline is the deadline of tasks the portal shows no deadline for.
const NoDeadline = "Спи спокойно"

func (t Task) key() string {
	if t.Link != "" {
		return t.Link
	}
	return t.Subject + "\x00" + t.Type + "\x00" + t.Deadline
}

// Report is one row of the uploaded reports table.
type Report struct {
	Number       string `json:"number,omitempty"`
	TaskName     string `json:"task_name"`
	TaskLink     string `json:"task_link,omitempty"`
	Teacher      string `json:"teacher,omitempty"`
	TeacherLink  string `json:"teacher_link,omitempty"`
	Status       string `json:"status,omitempty"`
	StatusClass  string `json:"status_class,omitempty"`
	Score        string `json:"score"`
	UploadDate   string `json:"upload_date,omitempty"`
	DownloadLink string `json:"download_link,omitempty"`
	RemoveLink   string `json:"remove_link,omitempty"`
}

// NoScore is the score of reports that were not graded yet.
const NoScore = "―"

func (r Report) key() string {
	if r.TaskLink != "" {
		return r.TaskLink
	}
	return r.TaskName + "\x00" + r.Teacher + "\x00" + r.UploadDate
}

type Teacher struct {
	Name       string `json:"name"`
	Position   string `json:"position,omitempty"`
	ProfileURL string `json:"profile_url,omitempty"`
}

type Subject struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

type MarkStatus string

const (
	MarkGraded MarkStatus = "graded"
	MarkPass   MarkStatus = "зачет"
	MarkFail   MarkStatus = "незачет"
	MarkNone   MarkStatus = "none"
)

// Mark is one card of the grades page.
type Mark struct {
	Subject     Subject   `json:"subject"`
	Teachers    []Teacher `json:"teachers"`
	Semester    string    `json:"semester,omitempty"`
	ControlType string    `json:"control_type,omitempty"`
	// Label is the mark as the portal renders it, "нет" if there is none.
	Label   string     `json:"label"`
	Class   string     `json:"class,omitempty"`
	Value   *int       `json:"value"`
	Status  MarkStatus `json:"status"`
	Credits string     `json:"credits,omitempty"`
}

// NoMark is the label of cards without a mark.
const NoMark = "нет"

// ScheduleClass is one class of the daily or weekly schedule.
type ScheduleClass struct {
	PairNumber  string `json:"pair_number,omitempty"`
	TimeRange   string `json:"time_range,omitempty"`
	Type        string `json:"type,omitempty"`
	Subject     string `json:"subject"`
	Teacher     string `json:"teacher,omitempty"`
	TeacherInfo string `json:"teacher_info,omitempty"`
	Group       string `json:"group,omitempty"`
	Building    string `json:"building,omitempty"`
	Room        string `json:"room,omitempty"`
}

type ScheduleDay struct {
	// Name is the short weekday name, ex. "Пн".
	Name string `json:"name"`
	// Date is the day and month as rendered, ex. "03.11".
	Date string `json:"date"`
	// FullDate is the ISO date taken from the day link, ex. "2025-11-03".
	FullDate string          `json:"full_date,omitempty"`
	Classes  []ScheduleClass `json:"classes"`
}

type Specialty struct {
	Code     string `json:"code,omitempty"`
	Name     string `json:"name,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

type Cabinet struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
}

type Profile struct {
	FullName  string `json:"full_name,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	StudentID string `json:"student_id,omitempty"`

	Institute string    `json:"institute,omitempty"`
	Specialty Specialty `json:"specialty"`
	Direction string    `json:"direction,omitempty"`

	Group           string `json:"group,omitempty"`
	EducationForm   string `json:"education_form,omitempty"`
	EducationLevel  string `json:"education_level,omitempty"`
	Status          string `json:"status,omitempty"`
	EnrollmentOrder string `json:"enrollment_order,omitempty"`

	PrimaryEmail   string `json:"primary_email,omitempty"`
	SecondaryEmail string `json:"secondary_email,omitempty"`
	Phone          string `json:"phone,omitempty"`

	Cabinets       []Cabinet `json:"cabinets"`
	CurrentCabinet *Cabinet  `json:"current_cabinet,omitempty"`
}
