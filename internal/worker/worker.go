// Package worker recognizes processes started by the launcher on behalf of
// the training framework's data-loading workers.
package worker

// EnvVar is exported into every child interpreter the launcher starts. A
// launcher process that finds it set was spawned as a worker.
const EnvVar = "TRAINLAUNCH_SPAWNED_WORKER"

// Flag is the explicit argument that marks a spawned worker.
const Flag = "--spawned-worker"

// IsSpawnedWorker reports whether this process was started as a worker,
// either through EnvVar or through the Flag argument. Worker processes exit
// before parsing arguments or touching any files.
func IsSpawnedWorker(args []string, getenv func(string) string) bool {
	if getenv != nil && getenv(EnvVar) == "1" {
		return true
	}
	for _, arg := range args {
		if arg == Flag {
			return true
		}
	}
	return false
}

// Environ returns the entry that marks a child as a spawned worker.
func Environ() string {
	return EnvVar + "=1"
}
