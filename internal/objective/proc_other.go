//go:build !unix

package objective

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}
