package status

// Job represents a transcription job status
type Job int

const (
	// Pending - submitted, not started by provider
	Pending Job = iota + 1
	// Running - provider is working
	Running
	// Succeeded - final step, result is available
	Succeeded
	// Failed - final step
	Failed
)

var (
	jobName = map[Job]string{Pending: "PENDING", Running: "RUNNING",
		Succeeded: "SUCCEEDED", Failed: "FAILED"}
	nameJob = map[string]Job{"PENDING": Pending, "RUNNING": Running,
		"SUCCEEDED": Succeeded, "FAILED": Failed}
)

func (st Job) String() string {
	return jobName[st]
}

// IsFinal returns true for terminal statuses
func (st Job) IsFinal() bool {
	return st == Succeeded || st == Failed
}

// Precedes reports if st is an earlier step than other,
// a job may move only forward
func (st Job) Precedes(other Job) bool {
	if st.IsFinal() {
		return false
	}
	return st < other
}

// From returns job status obj from string
func From(st string) Job {
	return nameJob[st]
}

// Recording represents recording status visible for the rest of the app
type Recording int

const (
	// Uploaded - initial recording status
	Uploaded Recording = iota + 1
	// Transcribing - a job is in progress
	Transcribing
	// Completed - transcription is saved
	Completed
	// RecFailed - last job failed
	RecFailed
)

var (
	recName = map[Recording]string{Uploaded: "uploaded", Transcribing: "transcribing",
		Completed: "completed", RecFailed: "failed"}
	nameRec = map[string]Recording{"uploaded": Uploaded, "transcribing": Transcribing,
		"completed": Completed, "failed": RecFailed}
)

func (st Recording) String() string {
	return recName[st]
}

// RecordingFrom returns recording status obj from string
func RecordingFrom(st string) Recording {
	return nameRec[st]
}
