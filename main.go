package main

import "github.com/praetorian-inc/ssoctl/cmd"

func main() {
	cmd.Execute()
}
