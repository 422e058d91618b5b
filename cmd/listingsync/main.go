// Listingsync CLI entry point
//
// Listingsync keeps CRM listings and agents in sync with a local record store.
package main

import "github.com/jbctechsolutions/listingsync/internal/presentation/cli/commands"

func main() {
	commands.Execute()
}
