// Command cinedb installs, updates and browses the local catalog.
package main

func main() {
	Execute()
}
