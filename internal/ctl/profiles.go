package ctl

import (
	"fmt"
	"strings"

	"github.com/large-farva/skylock/internal/config"
)

// Profiles lists configuration profiles in the local config directory.
// Unlike the other commands this one never talks to the daemon; it
// inspects the same directory skylockd's --profile flag resolves
// against.
func Profiles(jsonOutput bool) error {
	dir := config.DefaultConfigDir()
	profiles, err := config.ListProfiles(dir)
	if err != nil {
		return err
	}

	if jsonOutput {
		if profiles == nil {
			profiles = []config.ProfileInfo{}
		}
		return printJSON(map[string]any{"dir": dir, "profiles": profiles})
	}

	fmt.Println()
	fmt.Println(header("  CONFIG PROFILES"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 50)))

	if len(profiles) == 0 {
		fmt.Printf("  No profiles in %s\n", dir)
		fmt.Println(colorize(dim, "  Drop a .toml file there and start the daemon with --profile <name>."))
	} else {
		t := newTable("  ", "Name", "Modified", "Path")
		for _, p := range profiles {
			t.row(p.Name, p.Modified.Local().Format("2006-01-02 15:04"), p.Path)
		}
		t.flush()
	}

	fmt.Println()
	return nil
}
