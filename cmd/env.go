package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vesto-app/tenk/internal/config"
)

// credential is a setting checked by the env command.
type credential struct {
	key      string
	value    string
	required bool
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Show which env files were loaded and which credentials are set",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, f := range config.EnvFiles {
			if _, err := os.Stat(f); err == nil {
				fmt.Fprintf(out, "found      %s\n", f)
			} else {
				fmt.Fprintf(out, "not found  %s\n", f)
			}
		}
		fmt.Fprintln(out)

		creds := []credential{
			{"secapi.token", cfg.SecAPI.Token, true},
			{"finnhub.key", cfg.Finnhub.Key, false},
			{"store.database_url", cfg.Store.DatabaseURL, false},
			{"objectstore.secret_key", cfg.ObjectStore.SecretKey, false},
		}
		if missing := reportCredentials(out, creds); missing > 0 {
			return fmt.Errorf("%d required setting(s) missing", missing)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(envCmd)
}

// reportCredentials prints one line per credential and returns how many
// required ones are unset.
func reportCredentials(w io.Writer, creds []credential) int {
	missing := 0
	for _, c := range creds {
		switch {
		case c.value != "":
			fmt.Fprintf(w, "set      %-24s %s\n", c.key, maskSecret(c.value))
		case c.required:
			fmt.Fprintf(w, "MISSING  %s\n", c.key)
			missing++
		default:
			fmt.Fprintf(w, "unset    %s (optional)\n", c.key)
		}
	}
	return missing
}

// maskSecret shows the ends of long secrets only.
func maskSecret(v string) string {
	if len(v) > 20 {
		return v[:10] + "..." + v[len(v)-10:]
	}
	return "***SET***"
}
