// Package main is the entry point for difychat.
package main

import "github.com/tale555/dify-chat-webapp/internal/commands"

func main() {
	commands.Execute()
}
