package employee

import (
	"time"
)

// InsertSQL inserts one employee. Parameters are filled by Params.
const InsertSQL = `INSERT INTO employee (empnumber, empname, jobtitle, mgrnumber, hiredate)
VALUES (:empNumber, :empName, :jobTitle, :mgrNumber, :hireDate)`

// Params returns the named parameters of InsertSQL for e. A missing manager is NULL.
func Params(e Employee) map[string]interface{} {
	var mgr interface{}
	if e.MgrNumber != nil {
		mgr = *e.MgrNumber
	}
	return map[string]interface{}{
		"empNumber": e.EmpNumber,
		"empName":   e.EmpName,
		"jobTitle":  e.JobTitle,
		"mgrNumber": mgr,
		"hireDate":  e.HireDate,
	}
}

// Row is the parquet layout of an employee. Identifiers are INT64 so any int fits;
// HireDate counts days since the Unix epoch.
type Row struct {
	EmpNumber int64  `parquet:"name=emp_number, type=INT64"`
	EmpName   string `parquet:"name=emp_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	JobTitle  string `parquet:"name=job_title, type=BYTE_ARRAY, convertedtype=UTF8"`
	MgrNumber *int64 `parquet:"name=mgr_number, type=INT64, repetitiontype=OPTIONAL"`
	HireDate  int32  `parquet:"name=hire_date, type=INT32, convertedtype=DATE"`
}

const secondsPerDay = int64(24 * time.Hour / time.Second)

// ToRow converts e to its parquet layout.
func ToRow(e Employee) Row {
	row := Row{
		EmpNumber: int64(e.EmpNumber),
		EmpName:   e.EmpName,
		JobTitle:  e.JobTitle,
		HireDate:  epochDays(e.HireDate),
	}
	if e.MgrNumber != nil {
		mgr := int64(*e.MgrNumber)
		row.MgrNumber = &mgr
	}
	return row
}

// epochDays floors, so dates before 1970 land on the right day.
func epochDays(t time.Time) int32 {
	secs := t.Unix()
	days := secs / secondsPerDay
	if secs%secondsPerDay < 0 {
		days--
	}
	return int32(days)
}
