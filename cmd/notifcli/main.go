package main

import "erp-notification-be/internal/cli"

func main() {
	cli.Execute()
}
