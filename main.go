package main

import (
	"os"

	_ "net/http/pprof"

	"github.com/ajpowelsnl/mhm2-proxy/cmd"
)

func main() {
	// "mhm2p docs" regenerates the Markdown command docs
	if len(os.Args) > 1 && os.Args[1] == "docs" {
		makeDocs()
		return
	}

	cmd.Execute() // initialize cobra commands
	// log.Println(http.ListenAndServe("localhost:6060", nil)) // for profiling
}
