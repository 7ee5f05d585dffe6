package main

import "github.com/MeKo-Tech/marisma/cmd/marisma/cmd"

func main() {
	cmd.Execute()
}
