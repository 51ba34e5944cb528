//go:build windows

package runfolder

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// CollectEnvInfo gathers the host facts recorded in env.json.
func CollectEnvInfo(runnerVersion, scriptHost string) EnvInfo {
	info := EnvInfo{
		RunnerVersion:     runnerVersion,
		ScriptHostVersion: scriptHost,
	}
	major, minor, build := windows.RtlGetNtVersionNumbers()
	info.OSVersion = fmt.Sprintf("Windows %d.%d.%d", major, minor, build)

	var token windows.Token
	if err := windows.OpenProcessToken(windows.CurrentProcess(), windows.TOKEN_QUERY, &token); err == nil {
		defer token.Close()
		info.IsElevated = token.IsElevated()
	}
	return info
}
