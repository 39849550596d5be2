package commands

import (
	"context"
	"errors"
	"fmt"
	"guapassist-backend/internal/client"
	"guapassist-backend/internal/components/telemetry"
	"guapassist-backend/internal/session"
	"guapassist-backend/lib/restyutil"
	libtelemetry "guapassist-backend/lib/telemetry"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	envUsername = "GUAP_USERNAME"
	envPassword = "GUAP_PASSWORD"
	envServer   = "GUAP_SERVER"
	envToken    = "GUAP_ACCESS_TOKEN"
)

var (
	verbose    bool
	serverUrl  string
	token      string
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "guap-cli",
	Short: "guap-cli extracts data from pro.guap.ru, either directly or through a guap-server.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		err := godotenv.Load(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		libtelemetry.InitSlog(verbose)

		if serverUrl == "" {
			serverUrl = os.Getenv(envServer)
		}
		if token == "" {
			token = os.Getenv(envToken)
		}
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging.")
	flags.StringVar(&serverUrl, "server", "", "Base url of a guap-server, when set everything runs remotely (env "+envServer+").")
	flags.StringVar(&token, "token", "", "Access token of the guap-server (env "+envToken+").")
	flags.StringVar(&configPath, "config", "config.json5", "Config used when running locally.")
	flags.StringVar(&envFile, "env", ".env", "File to load environment variables from.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func remote() bool {
	return serverUrl != ""
}

func newClient() *client.Client {
	opts := client.Options{
		BaseURL:     serverUrl,
		AccessToken: token,
	}
	if verbose {
		opts.Dump = restyutil.DevOutput("client")
	}
	return client.NewClient(telemetry.SlogAPI{}, opts)
}

// credentials reads the account from flags, falling back to the environment.
func credentials(cmd *cobra.Command) (session.Credentials, error) {
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	if username == "" {
		username = os.Getenv(envUsername)
	}
	if password == "" {
		password = os.Getenv(envPassword)
	}
	creds := session.Credentials{Username: username, Password: password}
	if creds.Empty() {
		return creds, fmt.Errorf("username and password are required, pass --username/--password or set %s/%s", envUsername, envPassword)
	}
	slog.Debug("using account", "username", username)
	return creds, nil
}

func addCredentialFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("username", "u", "", "Portal username (env "+envUsername+").")
	cmd.Flags().StringP("password", "p", "", "Portal password (env "+envPassword+").")
}
