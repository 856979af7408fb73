/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package main

import "github.com/webkeep/webkeep/cmd"

func main() {
	cmd.Execute()
}
