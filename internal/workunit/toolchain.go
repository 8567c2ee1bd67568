package workunit

import (
	"fmt"

	"github.com/mattn/go-shellwords"
	"github.com/specialistvlad/eppicbatch/internal/config"
)

// Toolchain holds everything needed to build an analysis command line.
type Toolchain struct {
	Java       string
	JavaOpts   []string
	Jar        string
	ConfigFile string
}

// ToolchainFromConfig reads java, java_opts, eppic_cli_jar and
// eppic_cli_conf_file. java_opts is split with shell quoting rules.
func ToolchainFromConfig(cfg *config.Resolved) (Toolchain, error) {
	var tc Toolchain
	var err error

	if tc.Java, err = cfg.Get("java"); err != nil {
		return tc, err
	}
	if tc.Jar, err = cfg.Get("eppic_cli_jar"); err != nil {
		return tc, err
	}
	if tc.ConfigFile, err = cfg.Get("eppic_cli_conf_file"); err != nil {
		return tc, err
	}
	opts, err := cfg.Get("java_opts")
	if err != nil {
		return tc, err
	}
	if tc.JavaOpts, err = shellwords.Parse(opts); err != nil {
		return tc, fmt.Errorf("parsing java_opts %q: %w", opts, err)
	}
	return tc, nil
}

// Command returns the full argv for one identifier:
//
//	java <opts...> -jar <jar> -i <id> -o <outdir> -a 1 -w -g <conf> -l -P -p
func (tc Toolchain) Command(identifier, outputDir string) []string {
	argv := make([]string, 0, len(tc.JavaOpts)+16)
	argv = append(argv, tc.Java)
	argv = append(argv, tc.JavaOpts...)
	argv = append(argv,
		"-jar", tc.Jar,
		"-i", identifier,
		"-o", outputDir,
		"-a", "1",
		"-w",
		"-g", tc.ConfigFile,
		"-l",
		"-P",
		"-p",
	)
	return argv
}
