package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJob_String(t *testing.T) {
	tests := []struct {
		st   Job
		want string
	}{
		{st: Pending, want: "PENDING"},
		{st: Running, want: "RUNNING"},
		{st: Succeeded, want: "SUCCEEDED"},
		{st: Failed, want: "FAILED"},
		{st: 0, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.st.String(); got != tt.want {
				t.Errorf("Job.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFrom(t *testing.T) {
	tests := []struct {
		args string
		want Job
	}{
		{args: "PENDING", want: Pending},
		{args: "RUNNING", want: Running},
		{args: "SUCCEEDED", want: Succeeded},
		{args: "FAILED", want: Failed},
		{args: "olia", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			if got := From(tt.args); got != tt.want {
				t.Errorf("From() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJob_IsFinal(t *testing.T) {
	assert.False(t, Pending.IsFinal())
	assert.False(t, Running.IsFinal())
	assert.True(t, Succeeded.IsFinal())
	assert.True(t, Failed.IsFinal())
}

func TestJob_Precedes(t *testing.T) {
	assert.True(t, Pending.Precedes(Running))
	assert.True(t, Pending.Precedes(Failed))
	assert.True(t, Running.Precedes(Succeeded))
	assert.False(t, Running.Precedes(Pending))
	assert.False(t, Running.Precedes(Running))
	assert.False(t, Succeeded.Precedes(Failed))
	assert.False(t, Failed.Precedes(Succeeded))
}

func TestRecording(t *testing.T) {
	tests := []struct {
		st   Recording
		want string
	}{
		{st: Uploaded, want: "uploaded"},
		{st: Transcribing, want: "transcribing"},
		{st: Completed, want: "completed"},
		{st: RecFailed, want: "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.st.String())
			assert.Equal(t, tt.st, RecordingFrom(tt.want))
		})
	}
	assert.Equal(t, Recording(0), RecordingFrom("olia"))
}
