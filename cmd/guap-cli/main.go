package main

import (
	"guapassist-backend/cmd/guap-cli/commands"
	"guapassist-backend/lib/util/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
