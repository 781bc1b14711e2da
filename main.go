package main

import cmd "github.com/webitel/order-history/cmd/main"

func main() {
	cmd.Run()
}
