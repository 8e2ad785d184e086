// Package employee holds the employee import job: the record, its processor, and the
// mappings to each sink.
package employee

import (
	"fmt"
	"time"
)

// TableName is the target table of the database sinks.
const TableName = "employee"

// Employee is one row of the employee CSV file.
type Employee struct {
	EmpNumber int       `csv:"empNumber" gorm:"column:empnumber;primaryKey;autoIncrement:false"`
	EmpName   string    `csv:"empName" gorm:"column:empname"`
	JobTitle  string    `csv:"jobTitle" gorm:"column:jobtitle"`
	MgrNumber *int      `csv:"mgrNumber" gorm:"column:mgrnumber"`
	HireDate  time.Time `csv:"hireDate" gorm:"column:hiredate;type:date"`
}

// TableName tells GORM which table Employee maps to.
func (Employee) TableName() string { return TableName }

func (e Employee) String() string {
	mgr := "none"
	if e.MgrNumber != nil {
		mgr = fmt.Sprint(*e.MgrNumber)
	}
	return fmt.Sprintf("Employee{empNumber=%d, empName=%s, jobTitle=%s, mgrNumber=%s, hireDate=%s}",
		e.EmpNumber, e.EmpName, e.JobTitle, mgr, e.HireDate.Format("2006-01-02"))
}
