package db

type Record struct {
	Username  string
	Domain    string
	Variant   string
	Data      string
	UpdatedAt int64
}

type ExtractionLog struct {
	ID           int64
	Username     string
	Domain       string
	Success      bool
	ItemsCount   int64
	ErrorMessage string
	CreatedAt    int64
}
