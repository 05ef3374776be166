package main

import "github.com/ValentinKolb/dMeta/cmd"

func main() {
	cmd.Execute()
}
