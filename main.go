package main

import "github.com/ValentinKolb/revd/cmd"

func main() {
	cmd.Execute()
}
