// Package instance defines the canonical status record for a managed database
// instance and normalizes the loosely-typed shapes the backend sends into it.
package instance

import (
	"strconv"
	"strings"
	"time"
)

// ID identifies an instance. Numeric ids from the wire are kept in their
// decimal string form so 7 and "7" refer to the same record.
type ID string

// Status is the observed health of an instance.
type Status string

const (
	StatusRunning Status = "running"
	StatusError   Status = "error"
)

// ParseStatus maps a raw status value to a Status.
// Anything that isn't recognisably "running" is treated as an error.
func ParseStatus(raw string) Status {
	if strings.EqualFold(strings.TrimSpace(raw), string(StatusRunning)) {
		return StatusRunning
	}
	return StatusError
}

// Normalize returns s if valid, StatusError otherwise.
func (s Status) Normalize() Status {
	return ParseStatus(string(s))
}

// Record is the last-known state of one instance.
type Record struct {
	ID ID `json:"id"`

	// Identity and display fields. Status events never change these.
	InstanceName string     `json:"instanceName"`
	Host         string     `json:"host"`
	Port         int        `json:"port"`
	DBType       string     `json:"dbType"`
	Storage      string     `json:"storage,omitempty"`
	CreateTime   *time.Time `json:"createTime,omitempty"`

	// Mutable status fields.
	Status        Status     `json:"status"`
	IsMonitoring  bool       `json:"isMonitoring"`
	LastCheckTime *time.Time `json:"lastCheckTime"`
	CPUUsage      int        `json:"cpuUsage"`
	MemoryUsage   int        `json:"memoryUsage"`
}

// Online reports whether the instance is running.
func (r Record) Online() bool {
	return r.Status.Normalize() == StatusRunning
}

// Address returns host:port for display.
func (r Record) Address() string {
	if r.Port == 0 {
		return r.Host
	}
	return r.Host + ":" + strconv.Itoa(r.Port)
}

// Clone returns a deep copy; the time pointers are not shared.
func (r Record) Clone() Record {
	out := r
	out.CreateTime = cloneTime(r.CreateTime)
	out.LastCheckTime = cloneTime(r.LastCheckTime)
	return out
}

// MergeIdentity fills identity fields that are empty in r from prev.
// An update carrying a partial record must not erase what the registry told us.
func (r Record) MergeIdentity(prev Record) Record {
	if r.InstanceName == "" {
		r.InstanceName = prev.InstanceName
	}
	if r.Host == "" {
		r.Host = prev.Host
	}
	if r.Port == 0 {
		r.Port = prev.Port
	}
	if r.DBType == "" {
		r.DBType = prev.DBType
	}
	if r.Storage == "" {
		r.Storage = prev.Storage
	}
	if r.CreateTime == nil {
		r.CreateTime = cloneTime(prev.CreateTime)
	}
	return r
}

// Patch carries a subset of mutable fields. Nil fields are left untouched.
type Patch struct {
	Status        *Status
	IsMonitoring  *bool
	LastCheckTime *time.Time
	CPUUsage      *int
	MemoryUsage   *int
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Status == nil && p.IsMonitoring == nil && p.LastCheckTime == nil &&
		p.CPUUsage == nil && p.MemoryUsage == nil
}

// Apply returns r with the patch applied.
func (p Patch) Apply(r Record) Record {
	if p.Status != nil {
		r.Status = p.Status.Normalize()
	}
	if p.IsMonitoring != nil {
		r.IsMonitoring = *p.IsMonitoring
	}
	if p.LastCheckTime != nil {
		r.LastCheckTime = cloneTime(p.LastCheckTime)
	}
	if p.CPUUsage != nil {
		r.CPUUsage = *p.CPUUsage
	}
	if p.MemoryUsage != nil {
		r.MemoryUsage = *p.MemoryUsage
	}
	return r
}

// Stats summarises a set of records.
type Stats struct {
	Total   int `json:"total"`
	Running int `json:"running"`
	Error   int `json:"error"`
}

// Count classifies records; anything not running counts as an error.
func Count(records []Record) Stats {
	s := Stats{Total: len(records)}
	for _, r := range records {
		if r.Online() {
			s.Running++
		} else {
			s.Error++
		}
	}
	return s
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
