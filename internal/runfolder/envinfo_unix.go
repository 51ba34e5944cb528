//go:build unix

package runfolder

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// CollectEnvInfo gathers the host facts recorded in env.json.
func CollectEnvInfo(runnerVersion, scriptHost string) EnvInfo {
	info := EnvInfo{
		RunnerVersion:     runnerVersion,
		ScriptHostVersion: scriptHost,
		IsElevated:        os.Geteuid() == 0,
	}
	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		info.OSVersion = fmt.Sprintf("%s %s", utsString(uts.Sysname[:]), utsString(uts.Release[:]))
	}
	return info
}

func utsString(raw []byte) string {
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i])
		}
	}
	return string(raw)
}
