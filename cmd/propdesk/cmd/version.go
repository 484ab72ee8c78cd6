package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is reported when the binary carries no module version, as with
// go run or a plain go build inside the repository.
const version = "0.3.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long: `Display the propdesk version together with the Go toolchain and VCS
revision recorded in the binary.

Examples:
  propdesk version
  propdesk version --short`,
	Run: runVersion,
}

var versionShort bool

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print only the version")
}

func runVersion(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	if versionShort {
		fmt.Fprintln(out, buildVersion())
		return
	}

	fmt.Fprintf(out, "propdesk %s\n", buildVersion())
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	fmt.Fprintf(out, "  go:       %s\n", info.GoVersion)
	rev, modified := vcsRevision(info)
	if rev != "" {
		if modified {
			rev += " (modified)"
		}
		fmt.Fprintf(out, "  revision: %s\n", rev)
	}
}

// buildVersion prefers the module version stamped by go install.
func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return version
}

func vcsRevision(info *debug.BuildInfo) (rev string, modified bool) {
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	return rev, modified
}
