// Package main provides the command-line interface for running scheduled
// transit simulations.
package main

func main() {
	Execute()
}
