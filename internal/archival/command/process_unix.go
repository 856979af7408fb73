package command

import "syscall"

// setpgidAttr places the spawned process in its own process group so interrupt can stop
// any children the shell spawns, not just sh itself.
func setpgidAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func terminateGroup(pid int, sig syscall.Signal) {
	_ = syscall.Kill(-pid, sig)
}
