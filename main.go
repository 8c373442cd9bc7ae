package main

import "campus-ticket/cmd"

func main() {
	cmd.Start()
}
