package main

import (
	"sipac-backend/cmd/sipac-cli/commands"
	"sipac-backend/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
