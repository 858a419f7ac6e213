package apps

import (
	"strings"

	"ember/emberos/kernel"
	"ember/emberos/user"
)

// echo prints its arguments.
var echoText = kernel.Text{
	func(u *kernel.UserContext) {
		r := u.Regs()
		args := user.Args(u, r.A0, r.A1)
		if len(args) > 0 {
			args = args[1:]
		}
		user.Print(u, strings.Join(args, " ")+"\n")
	},
	exit(0),
}

// exectest replaces itself with echo. Reaching the second instruction means
// exec failed.
var execText = kernel.Text{
	func(u *kernel.UserContext) {
		path := user.PutString(u, 0, "echo")
		argv := user.PutArgv(u, 64, []string{"echo", "exec", "works"})
		if path == 0 || argv == 0 {
			return
		}
		user.Exec(u, path, argv)
	},
	say("exectest: exec failed\n"),
	exit(1),
}
