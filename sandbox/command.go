package sandbox

import (
	"path"
	"strconv"
)

// ContainerMountPath is where the scratch root appears inside a container.
const ContainerMountPath = "/sandbox"

const containerNamePrefix = "runbox-"

// commandSpec is a fully resolved process invocation.
type commandSpec struct {
	Args []string
	Dir  string
	Env  []string
	// ContainerName is set in container mode so a timed-out container can be removed.
	ContainerName string
}

// containerName derives the container name from the workspace id, so the
// container and its scratch file are traceable to each other.
func containerName(ws *Workspace) string {
	return containerNamePrefix + ws.ID
}

// buildContainerCommand wraps the interpreter in `<runtime> run`. Only the
// scratch root is mounted, read-only; network is off unless enabled, and
// memory, CPU and process count are capped.
func buildContainerCommand(binary string, rt Runtime, ws *Workspace, scratchRoot string, cfg Config) commandSpec {
	name := containerName(ws)
	memory := strconv.Itoa(cfg.MemoryMB) + "m"

	args := []string{
		binary, "run",
		"--rm",
		"-i", // keep stdin attached so input reaches the program and EOF follows
		"--name", name,
		"--memory", memory,
		"--memory-swap", memory,
		"--cpus", strconv.FormatFloat(cfg.CPUs, 'f', 2, 64),
		"--pids-limit", strconv.Itoa(cfg.PIDsLimit),
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"--read-only",
		"--user", "65534:65534",
		"--tmpfs", "/tmp:rw,noexec,nosuid,size=16m",
		"-v", scratchRoot + ":" + ContainerMountPath + ":ro",
		"--workdir", ContainerMountPath,
	}

	if cfg.NetworkEnabled {
		args = append(args, "--network", "bridge")
	} else {
		args = append(args, "--network", "none")
	}

	args = append(args, rt.Image, rt.Interpreter, path.Join(ContainerMountPath, ws.FileName()))

	return commandSpec{
		Args:          args,
		ContainerName: name,
	}
}

// buildHostCommand runs the resolved interpreter against the staged file.
func buildHostCommand(binary string, ws *Workspace, scratchRoot string) commandSpec {
	return commandSpec{
		Args: []string{binary, ws.Path},
		Dir:  scratchRoot,
		Env:  hostEnv(scratchRoot),
	}
}
