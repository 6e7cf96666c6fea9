package loginfra

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"k8s.io/klog/v2"
)

// VerbosityEnvVar sets the klog verbosity when -v is not given.
const VerbosityEnvVar = "EBS_DEPLOY_VERBOSITY"

func NewFlagSet() *flag.FlagSet {
	// See https://flowerinthenight.com/blog/2019/02/05/golang-cobra-klog
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

	// Suppress usage flag.ErrHelp
	fs.SetOutput(ioutil.Discard)

	return fs
}

// Init returns the klog flags parsed from the process arguments.
// Cobra parses the same arguments again, so unknown flags are ignored here.
func Init() *flag.FlagSet {
	fs := AddKlogFlags(NewFlagSet())

	return Parse(fs, os.Args[1:])
}

func Parse(fs *flag.FlagSet, args []string) *flag.FlagSet {
	args = append([]string{}, args...)

	for {
		err := fs.Parse(args)
		if err == nil || err == flag.ErrHelp {
			break
		}
		if !strings.Contains(err.Error(), "flag provided but not defined") {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		// Skip the unknown flag and go on with the rest
		rest := fs.Args()
		if len(args) == len(rest) || len(rest) == 0 {
			break
		}
		args = rest
	}

	return fs
}

func AddKlogFlags(fs *flag.FlagSet) *flag.FlagSet {
	klog.InitFlags(fs)

	fs.Set("skip_headers", "true")

	if v := os.Getenv(VerbosityEnvVar); v != "" {
		fmt.Fprintf(os.Stderr, "Setting log verbosity to %s\n", v)
		fs.Set("v", v)
	}

	return fs
}
