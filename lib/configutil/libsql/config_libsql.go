package configlibsql

import (
	"database/sql"
	"fmt"
	"guapassist-backend/pkg/migrations"
	"net/url"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// Struct selects the database, a remote libsql database when Url is set
// and a local sqlite file otherwise.
type Struct struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (config Struct) Remote() bool {
	return config.Url != ""
}

func (config Struct) OpenDB() (*sql.DB, error) {
	if config.Url == "" {
		if config.File == "" {
			return nil, fmt.Errorf("a path was not specified")
		}
		return migrations.OpenDB(config.File)
	}

	values := url.Values{}
	if config.AuthToken != "" {
		values.Add("authToken", config.AuthToken)
	}
	target := config.Url
	if len(values) > 0 {
		target += "?" + values.Encode()
	}
	db, err := sql.Open("libsql", target)
	if err != nil {
		return nil, fmt.Errorf("open libsql db: %w", err)
	}
	return db, nil
}
