//go:build windows

package integration

import "os/exec"

func configureProcess(cmd *exec.Cmd) {}
