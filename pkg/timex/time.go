// Package timex 提供数据库与 JSON 友好的时间类型
package timex

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Layout JSON 输出格式
const Layout = "2006-01-02T15:04:05.000Z07:00"

// Time wraps time.Time with a millisecond JSON layout and sql scanning.
type Time time.Time

// Now 当前时间
func Now() Time {
	return Time(time.Now())
}

// Std 返回标准库时间
func (t Time) Std() time.Time {
	return time.Time(t)
}

func (t Time) IsZero() bool {
	return time.Time(t).IsZero()
}

func (t Time) Before(u Time) bool {
	return time.Time(t).Before(time.Time(u))
}

func (t Time) Equal(u Time) bool {
	return time.Time(t).Equal(time.Time(u))
}

func (t Time) Unix() int64      { return time.Time(t).Unix() }
func (t Time) UnixMilli() int64 { return time.Time(t).UnixMilli() }
func (t Time) UnixMicro() int64 { return time.Time(t).UnixMicro() }
func (t Time) UnixNano() int64  { return time.Time(t).UnixNano() }

func (t Time) String() string {
	return time.Time(t).Format(Layout)
}

// MarshalJSON 零值输出 null
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + time.Time(t).Format(Layout) + `"`), nil
}

// UnmarshalJSON accepts null, Layout and RFC3339.
func (t *Time) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		*t = Time{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("timex: invalid time %s", s)
	}
	s = s[1 : len(s)-1]
	for _, layout := range []string{Layout, time.RFC3339Nano} {
		if v, err := time.Parse(layout, s); err == nil {
			*t = Time(v)
			return nil
		}
	}
	return fmt.Errorf("timex: cannot parse %q", s)
}

// Value implements driver.Valuer
func (t Time) Value() (driver.Value, error) {
	if t.IsZero() {
		return nil, nil
	}
	return time.Time(t), nil
}

// Scan implements sql.Scanner
func (t *Time) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		*t = Time{}
	case time.Time:
		*t = Time(x)
	case string:
		return t.parseStored(x)
	case []byte:
		return t.parseStored(string(x))
	default:
		return fmt.Errorf("timex: cannot scan %T", v)
	}
	return nil
}

func (t *Time) parseStored(s string) error {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05"} {
		if v, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			*t = Time(v)
			return nil
		}
	}
	return fmt.Errorf("timex: cannot parse stored time %q", s)
}

// GormDataType lets each dialector pick its own time column type.
func (Time) GormDataType() string {
	return "time"
}
