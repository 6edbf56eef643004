package model

// File names inside a job folder.
const (
	ConfigFileName      = "config.json"
	DumpFileName        = "database.sql"
	DumpCursorFileName  = ".dump-cursor.json"
	StepContextFileName = ".step-context.json"
	ProcessLockFileName = "__process_restore.log"
	RestoreLogFileName  = "restore.log"
)

// JobStateFiles are engine bookkeeping files kept at the top of a job
// folder. They are left out of download artifacts.
var JobStateFiles = []string{
	DumpCursorFileName,
	StepContextFileName,
	ProcessLockFileName,
	RestoreLogFileName,
}

// IsJobStateFile reports whether name is one of JobStateFiles.
func IsJobStateFile(name string) bool {
	for _, f := range JobStateFiles {
		if name == f {
			return true
		}
	}
	return false
}
