// oraclehost spawns an oracle command, runs one invoke against it and
// prints the result felts, then shuts the oracle down.
//
//	oraclehost -oracle "python3 ./oracle.py" sqrt 0x10
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/oraclectl/internal/host"
	"github.com/danmuck/oraclectl/internal/logging"
	"github.com/danmuck/oraclectl/internal/protocol/felt"
)

func main() {
	var (
		oracleCmd = flag.String("oracle", "", "oracle command to spawn")
		logLevel  = flag.String("log-level", "", "log level (trace|debug|info|warn|error|disabled)")
	)
	flag.Parse()

	logger := logging.Configure(logging.ProfileRuntime, "oraclehost")
	if *logLevel != "" {
		if lvl, ok := logging.ParseLevel(*logLevel); ok {
			logger = logger.Level(lvl)
		}
	}

	args := flag.Args()
	if *oracleCmd == "" || len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: oraclehost -oracle <command> <selector> [calldata...]")
		os.Exit(2)
	}
	selector := args[0]

	calldata := make([]felt.Felt, 0, len(args)-1)
	for _, arg := range args[1:] {
		f, err := felt.Decode(arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "oraclehost: calldata %q: %v\n", arg, err)
			os.Exit(2)
		}
		calldata = append(calldata, f)
	}

	conn, err := host.Connect(*oracleCmd, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "oraclehost: %v\n", err)
		os.Exit(1)
	}

	result, err := conn.Call(selector, calldata)
	if err != nil {
		fmt.Fprintf(os.Stderr, "oraclehost: invoke %s: %v\n", selector, err)
		_ = conn.Close()
		os.Exit(1)
	}

	fmt.Println(strings.Join(felt.EncodeSlice(result), " "))

	if err := conn.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "oraclehost: shutdown: %v\n", err)
		os.Exit(1)
	}
}
