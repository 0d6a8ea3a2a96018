/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "mealsnap/cmd"

func main() {
	cmd.Execute()
}
