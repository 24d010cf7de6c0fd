package main

import "github.com/dbsmedya/yoloctl/cmd/yoloctl/cmd"

func main() {
	cmd.Execute()
}
