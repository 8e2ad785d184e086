// Package model holds the run-scoped domain types of chunkbatch: job and step executions,
// their counters, the chunk engine state machine, and the terminal run outcome.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// BatchStatus is the coarse lifecycle status of a job or step execution.
type BatchStatus string

const (
	BatchStatusStarting  BatchStatus = "STARTING"
	BatchStatusStarted   BatchStatus = "STARTED"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusFailed    BatchStatus = "FAILED"
)

// String returns the string form of the status.
func (s BatchStatus) String() string {
	return string(s)
}

// IsFinished reports whether the status is terminal.
func (s BatchStatus) IsFinished() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

func isValidStatusTransition(current, next BatchStatus) bool {
	switch current {
	case BatchStatusStarting:
		return next == BatchStatusStarted || next == BatchStatusFailed
	case BatchStatusStarted:
		return next == BatchStatusCompleted || next == BatchStatusFailed
	default:
		return false
	}
}

// ChunkState is the fine-grained state of the chunk engine within one step execution.
type ChunkState string

const (
	ChunkStateIdle         ChunkState = "IDLE"
	ChunkStateReading      ChunkState = "READING"
	ChunkStateProcessing   ChunkState = "PROCESSING"
	ChunkStateAccumulating ChunkState = "ACCUMULATING"
	ChunkStateCommitting   ChunkState = "COMMITTING"
	ChunkStateCompleted    ChunkState = "COMPLETED"
	ChunkStateFailed       ChunkState = "FAILED"
)

// IsTerminal reports whether no further transition is possible.
func (s ChunkState) IsTerminal() bool {
	return s == ChunkStateCompleted || s == ChunkStateFailed
}

// validChunkTransitions lists the allowed successors of every non-terminal state.
// Reading may go straight to Committing (end of input with a partial chunk) or to
// Completed (end of input with an empty buffer). Processing returns to Reading on a skip.
var validChunkTransitions = map[ChunkState][]ChunkState{
	ChunkStateIdle:         {ChunkStateReading, ChunkStateFailed},
	ChunkStateReading:      {ChunkStateReading, ChunkStateProcessing, ChunkStateCommitting, ChunkStateCompleted, ChunkStateFailed},
	ChunkStateProcessing:   {ChunkStateReading, ChunkStateAccumulating, ChunkStateFailed},
	ChunkStateAccumulating: {ChunkStateReading, ChunkStateCommitting, ChunkStateFailed},
	ChunkStateCommitting:   {ChunkStateReading, ChunkStateCompleted, ChunkStateFailed},
}

// CanTransition reports whether current -> next is a legal chunk engine transition.
func CanTransition(current, next ChunkState) bool {
	for _, s := range validChunkTransitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

// ExecutionContext is a free-form key/value store owned by one step execution.
// Readers and writers keep their own bookkeeping here (e.g. "<name>.readCount").
type ExecutionContext map[string]interface{}

// NewExecutionContext creates an empty ExecutionContext.
func NewExecutionContext() ExecutionContext {
	return make(ExecutionContext)
}

// Put stores value under key.
func (ec ExecutionContext) Put(key string, value interface{}) {
	ec[key] = value
}

// Get returns the value stored under key.
func (ec ExecutionContext) Get(key string) (interface{}, bool) {
	v, ok := ec[key]
	return v, ok
}

// GetString returns the value under key if it is a string.
func (ec ExecutionContext) GetString(key string) (string, bool) {
	s, ok := ec[key].(string)
	return s, ok
}

// GetInt returns the value under key as an int. float64 values (from JSON) are truncated.
func (ec ExecutionContext) GetInt(key string) (int, bool) {
	switch v := ec[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Copy returns a shallow copy.
func (ec ExecutionContext) Copy() ExecutionContext {
	out := make(ExecutionContext, len(ec))
	for k, v := range ec {
		out[k] = v
	}
	return out
}

// FailureList holds the failure messages of an execution, without duplicates.
type FailureList []string

// Counters is an immutable snapshot of a step execution's progress.
type Counters struct {
	Read             int
	Processed        int
	Written          int
	Filtered         int
	SkipRead         int
	SkipProcess      int
	CommittedChunks  int
	RolledBackChunks int
}

// Skipped is the total number of records dropped without reaching the sink: records the
// processor explicitly skipped plus per-record errors absorbed by the skip policy.
func (c Counters) Skipped() int {
	return c.Filtered + c.SkipRead + c.SkipProcess
}

// String renders the counters for log lines.
func (c Counters) String() string {
	return fmt.Sprintf("read=%d processed=%d written=%d skipped=%d (filtered=%d, read errors=%d, process errors=%d) commits=%d rollbacks=%d",
		c.Read, c.Processed, c.Written, c.Skipped(), c.Filtered, c.SkipRead, c.SkipProcess, c.CommittedChunks, c.RolledBackChunks)
}

// Add returns the element-wise sum of two snapshots.
func (c Counters) Add(o Counters) Counters {
	return Counters{
		Read:             c.Read + o.Read,
		Processed:        c.Processed + o.Processed,
		Written:          c.Written + o.Written,
		Filtered:         c.Filtered + o.Filtered,
		SkipRead:         c.SkipRead + o.SkipRead,
		SkipProcess:      c.SkipProcess + o.SkipProcess,
		CommittedChunks:  c.CommittedChunks + o.CommittedChunks,
		RolledBackChunks: c.RolledBackChunks + o.RolledBackChunks,
	}
}

// OutcomeStatus is the terminal classification of a run.
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "COMPLETED"
	OutcomeFailed    OutcomeStatus = "FAILED"
)

// RunOutcome is what a finished run reports to its orchestrator: Completed, or Failed with
// the triggering cause, plus the final counters.
type RunOutcome struct {
	Status   OutcomeStatus
	Cause    error
	Counters Counters
}

// Completed builds a successful outcome.
func Completed(c Counters) RunOutcome {
	return RunOutcome{Status: OutcomeCompleted, Counters: c}
}

// Failed builds a failed outcome carrying cause.
func Failed(cause error, c Counters) RunOutcome {
	return RunOutcome{Status: OutcomeFailed, Cause: cause, Counters: c}
}

// IsCompleted reports whether the run completed.
func (o RunOutcome) IsCompleted() bool {
	return o.Status == OutcomeCompleted
}

// IsFailed reports whether the run failed.
func (o RunOutcome) IsFailed() bool {
	return o.Status == OutcomeFailed
}

// NewID generates a new UUID string.
func NewID() string {
	return uuid.New().String()
}

// JobExecution is one launch of a job. Each launch gets a fresh ID; there is no restart.
type JobExecution struct {
	ID             string
	JobName        string
	StartTime      time.Time
	EndTime        *time.Time
	Status         BatchStatus
	Failures       FailureList
	StepExecutions []*StepExecution
}

// NewJobExecution creates a JobExecution in STARTING status with a new ID.
func NewJobExecution(jobName string) *JobExecution {
	return &JobExecution{
		ID:        NewID(),
		JobName:   jobName,
		StartTime: time.Now(),
		Status:    BatchStatusStarting,
		Failures:  make(FailureList, 0),
	}
}

// TransitionTo moves the job execution to newStatus if the transition is legal.
func (je *JobExecution) TransitionTo(newStatus BatchStatus) error {
	if !isValidStatusTransition(je.Status, newStatus) {
		return fmt.Errorf("JobExecution (ID: %s): invalid state transition: %s -> %s", je.ID, je.Status, newStatus)
	}
	je.Status = newStatus
	return nil
}

// MarkAsStarted moves the job execution to STARTED.
func (je *JobExecution) MarkAsStarted() {
	if err := je.TransitionTo(BatchStatusStarted); err != nil {
		logger.Warnf("%v", err)
	}
}

// MarkAsCompleted moves the job execution to COMPLETED and stamps the end time.
func (je *JobExecution) MarkAsCompleted() {
	if err := je.TransitionTo(BatchStatusCompleted); err != nil {
		logger.Warnf("%v", err)
	}
	now := time.Now()
	je.EndTime = &now
}

// MarkAsFailed moves the job execution to FAILED and records cause.
func (je *JobExecution) MarkAsFailed(cause error) {
	if err := je.TransitionTo(BatchStatusFailed); err != nil {
		logger.Warnf("%v", err)
	}
	now := time.Now()
	je.EndTime = &now
	je.Failures = appendFailure(je.Failures, cause)
}

// AddStepExecution attaches a step execution to the job execution.
func (je *JobExecution) AddStepExecution(se *StepExecution) {
	se.JobExecution = je
	je.StepExecutions = append(je.StepExecutions, se)
}

// Counters sums the counters of all step executions.
func (je *JobExecution) Counters() Counters {
	var total Counters
	for _, se := range je.StepExecutions {
		total = total.Add(se.Counters())
	}
	return total
}

// Outcome derives the RunOutcome of a finished launch from its status and the error the
// runner returned. A nil execution (the job never started) is Failed with zero counters.
func (je *JobExecution) Outcome(cause error) RunOutcome {
	if je == nil {
		if cause == nil {
			cause = exception.NewBatchErrorf("model", "job execution is missing")
		}
		return Failed(cause, Counters{})
	}
	if je.Status == BatchStatusCompleted && cause == nil {
		return Completed(je.Counters())
	}
	if cause == nil {
		cause = exception.NewBatchErrorf("model", "job '%s' did not complete (status=%s)", je.JobName, je.Status)
	}
	return Failed(cause, je.Counters())
}

// StepExecution is the Execution Context of one chunk engine run. The engine owns it
// exclusively while the run is in progress; after a terminal state it is frozen.
type StepExecution struct {
	ID           string
	StepName     string
	JobExecution *JobExecution
	StartTime    time.Time
	EndTime      *time.Time
	Status       BatchStatus
	State        ChunkState
	Failures     FailureList

	ReadCount        int
	ProcessCount     int
	WriteCount       int
	CommitCount      int
	RollbackCount    int
	FilterCount      int
	SkipReadCount    int
	SkipProcessCount int

	ExecutionContext ExecutionContext
}

// NewStepExecution creates a StepExecution with all counters at zero, in IDLE state.
func NewStepExecution(stepName string) *StepExecution {
	return &StepExecution{
		ID:               NewID(),
		StepName:         stepName,
		StartTime:        time.Now(),
		Status:           BatchStatusStarting,
		State:            ChunkStateIdle,
		Failures:         make(FailureList, 0),
		ExecutionContext: NewExecutionContext(),
	}
}

// Counters returns a snapshot of the execution's counters.
func (se *StepExecution) Counters() Counters {
	return Counters{
		Read:             se.ReadCount,
		Processed:        se.ProcessCount,
		Written:          se.WriteCount,
		Filtered:         se.FilterCount,
		SkipRead:         se.SkipReadCount,
		SkipProcess:      se.SkipProcessCount,
		CommittedChunks:  se.CommitCount,
		RolledBackChunks: se.RollbackCount,
	}
}

// SkipCount is the total of filtered and error-skipped records.
func (se *StepExecution) SkipCount() int {
	return se.FilterCount + se.SkipReadCount + se.SkipProcessCount
}

// ErrorSkipCount counts only the per-record errors absorbed by the skip policy.
func (se *StepExecution) ErrorSkipCount() int {
	return se.SkipReadCount + se.SkipProcessCount
}

// Frozen reports whether the execution reached a terminal state.
func (se *StepExecution) Frozen() bool {
	return se.State.IsTerminal()
}

// TransitionState moves the chunk engine state forward, rejecting illegal transitions.
func (se *StepExecution) TransitionState(next ChunkState) error {
	if !CanTransition(se.State, next) {
		return fmt.Errorf("StepExecution '%s' (ID: %s): invalid chunk state transition: %s -> %s", se.StepName, se.ID, se.State, next)
	}
	se.State = next
	return nil
}

// MarkAsStarted moves the execution to STARTED / READING.
func (se *StepExecution) MarkAsStarted() error {
	if !isValidStatusTransition(se.Status, BatchStatusStarted) {
		return fmt.Errorf("StepExecution '%s' (ID: %s): invalid state transition: %s -> %s", se.StepName, se.ID, se.Status, BatchStatusStarted)
	}
	se.Status = BatchStatusStarted
	se.StartTime = time.Now()
	return se.TransitionState(ChunkStateReading)
}

// MarkAsCompleted moves the execution to COMPLETED and freezes it.
func (se *StepExecution) MarkAsCompleted() error {
	if err := se.TransitionState(ChunkStateCompleted); err != nil {
		return err
	}
	se.Status = BatchStatusCompleted
	se.stampEnd()
	return nil
}

// MarkAsFailed moves the execution to FAILED from any non-terminal state and records cause.
func (se *StepExecution) MarkAsFailed(cause error) {
	if err := se.TransitionState(ChunkStateFailed); err != nil {
		logger.Warnf("%v", err)
		se.State = ChunkStateFailed
	}
	se.Status = BatchStatusFailed
	se.Failures = appendFailure(se.Failures, cause)
	se.stampEnd()
}

func (se *StepExecution) stampEnd() {
	now := time.Now()
	se.EndTime = &now
}

// Outcome derives the RunOutcome of a finished execution. Non-terminal executions yield
// a Failed outcome, since an orchestrator should never see one.
func (se *StepExecution) Outcome(cause error) RunOutcome {
	if se.State == ChunkStateCompleted && cause == nil {
		return Completed(se.Counters())
	}
	if cause == nil {
		cause = exception.NewBatchErrorf("model", "step '%s' did not reach a terminal state (state=%s)", se.StepName, se.State)
	}
	return Failed(cause, se.Counters())
}

func appendFailure(list FailureList, err error) FailureList {
	if err == nil {
		return list
	}
	msg := exception.ExtractErrorMessage(err)
	for _, existing := range list {
		if existing == msg {
			return list
		}
	}
	return append(list, msg)
}
