package instance

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// timeLayouts are tried in order. The backend formats check times as
// "2006-01-02 15:04:05"; other sources use RFC 3339 or naive ISO-8601.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// keyAliases maps snake_case wire names to the canonical camelCase names.
var keyAliases = map[string]string{
	"instance_id":     "id",
	"instance_name":   "instanceName",
	"name":            "instanceName",
	"db_type":         "dbType",
	"is_monitoring":   "isMonitoring",
	"last_check_time": "lastCheckTime",
	"cpu_usage":       "cpuUsage",
	"memory_usage":    "memoryUsage",
	"create_time":     "createTime",
	"created_at":      "createTime",
}

// wireRecord is the decode target. Everything loosely typed on the wire is
// loosely typed here; Decode turns it into a Record.
type wireRecord struct {
	ID            string `mapstructure:"id"`
	InstanceName  string `mapstructure:"instanceName"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	DBType        string `mapstructure:"dbType"`
	Storage       string `mapstructure:"storage"`
	CreateTime    string `mapstructure:"createTime"`
	Status        string `mapstructure:"status"`
	IsMonitoring  bool   `mapstructure:"isMonitoring"`
	LastCheckTime string `mapstructure:"lastCheckTime"`
	CPUUsage      int    `mapstructure:"cpuUsage"`
	MemoryUsage   int    `mapstructure:"memoryUsage"`
}

type wirePatch struct {
	Status        *string `mapstructure:"status"`
	IsMonitoring  *bool   `mapstructure:"isMonitoring"`
	LastCheckTime *string `mapstructure:"lastCheckTime"`
	CPUUsage      *int    `mapstructure:"cpuUsage"`
	MemoryUsage   *int    `mapstructure:"memoryUsage"`
}

// Canonicalize rewrites known snake_case keys to their camelCase form.
// When both spellings are present the camelCase value wins.
func Canonicalize(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if canon, ok := keyAliases[k]; ok {
			if _, exists := raw[canon]; exists {
				continue
			}
			k = canon
		}
		out[k] = v
	}
	return out
}

// Decode converts a raw wire object into a Record.
// Missing or unknown status decodes as StatusError. A record without an id is rejected.
func Decode(raw map[string]any) (Record, error) {
	var w wireRecord
	if err := weakDecode(Canonicalize(raw), &w); err != nil {
		return Record{}, fmt.Errorf("decode instance: %w", err)
	}
	id := normalizeID(w.ID)
	if id == "" {
		return Record{}, fmt.Errorf("decode instance: missing id")
	}
	return Record{
		ID:            id,
		InstanceName:  w.InstanceName,
		Host:          w.Host,
		Port:          w.Port,
		DBType:        w.DBType,
		Storage:       w.Storage,
		CreateTime:    ParseTime(w.CreateTime),
		Status:        ParseStatus(w.Status),
		IsMonitoring:  w.IsMonitoring,
		LastCheckTime: ParseTime(w.LastCheckTime),
		CPUUsage:      w.CPUUsage,
		MemoryUsage:   w.MemoryUsage,
	}, nil
}

// DecodePatch extracts the mutable fields present in raw.
// Keys outside the record schema are ignored.
func DecodePatch(raw map[string]any) (Patch, error) {
	var w wirePatch
	if err := weakDecode(Canonicalize(raw), &w); err != nil {
		return Patch{}, fmt.Errorf("decode patch: %w", err)
	}
	var p Patch
	if w.Status != nil {
		s := ParseStatus(*w.Status)
		p.Status = &s
	}
	p.IsMonitoring = w.IsMonitoring
	if w.LastCheckTime != nil {
		p.LastCheckTime = ParseTime(*w.LastCheckTime)
	}
	p.CPUUsage = w.CPUUsage
	p.MemoryUsage = w.MemoryUsage
	return p, nil
}

// ParseID normalizes an id taken from an event payload (number or string).
func ParseID(v any) (ID, bool) {
	var s string
	switch id := v.(type) {
	case nil:
		return "", false
	case string:
		s = id
	case float64:
		s = strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		s = strconv.Itoa(id)
	case int64:
		s = strconv.FormatInt(id, 10)
	default:
		s = fmt.Sprint(id)
	}
	norm := normalizeID(s)
	return norm, norm != ""
}

// ParseTime parses the timestamp formats seen on the wire.
// Empty and unparseable input yields nil.
func ParseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func normalizeID(s string) ID {
	return ID(strings.TrimSpace(s))
}

func weakDecode(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
