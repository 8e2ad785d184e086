package employee

import (
	"context"
	"fmt"
	"strings"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Processor normalizes an employee before it is written.
type Processor struct{}

// NewProcessor creates a Processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process upper-cases the job title. An employee without a name is a ProcessingError.
func (p *Processor) Process(ctx context.Context, e Employee) (Employee, error) {
	logger.Debugf("Processing %s", e)
	if strings.TrimSpace(e.EmpName) == "" {
		return e, exception.NewProcessingError("employee", fmt.Sprintf("employee %d has no name", e.EmpNumber), nil)
	}
	e.JobTitle = strings.ToUpper(e.JobTitle)
	return e, nil
}

var _ port.ItemProcessor[Employee, Employee] = (*Processor)(nil)
