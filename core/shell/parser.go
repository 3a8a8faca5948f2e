package shell

import (
	shlex "github.com/anmitsu/go-shlex"
)

// Parse tokenizes a command line into an argument vector. Single-quoted
// spans form one token. A trailing "&" token requests background execution
// and is stripped. Blank input yields an empty argv.
func Parse(line string) (argv []string, background bool, err error) {
	argv, err = shlex.Split(line, true)
	if err != nil {
		return nil, false, err
	}

	if n := len(argv); n > 0 && argv[n-1] == "&" {
		argv = argv[:n-1]
		background = true
	}
	return argv, background, nil
}
