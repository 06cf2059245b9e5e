package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTime_UnixMethods(t *testing.T) {
	// Create a fixed time
	// 创建一个固定时间
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tt := Time(now)

	// Test Unix()
	if tt.Unix() != now.Unix() {
		t.Errorf("Unix() = %v, want %v", tt.Unix(), now.Unix())
	}

	// Test UnixMilli()
	if tt.UnixMilli() != now.UnixMilli() {
		t.Errorf("UnixMilli() = %v, want %v", tt.UnixMilli(), now.UnixMilli())
	}

	// Test UnixMicro()
	if tt.UnixMicro() != now.UnixMicro() {
		t.Errorf("UnixMicro() = %v, want %v", tt.UnixMicro(), now.UnixMicro())
	}

	// Test UnixNano()
	if tt.UnixNano() != now.UnixNano() {
		t.Errorf("UnixNano() = %v, want %v", tt.UnixNano(), now.UnixNano())
	}

	// Verify it's not returning time.Now() by waiting a bit
	// 通过等待一会确认它不是返回 time.Now()
	time.Sleep(10 * time.Millisecond)
	if tt.Unix() != now.Unix() {
		t.Errorf("Unix() changed after sleep, it should be static. got %v, want %v", tt.Unix(), now.Unix())
	}
}

func TestTime_JSON(t *testing.T) {
	tt := Time(time.Date(2024, 4, 1, 8, 30, 0, 250*int(time.Millisecond), time.UTC))
	b, err := json.Marshal(tt)
	require.NoError(t, err)
	assert.Equal(t, `"2024-04-01T08:30:00.250Z"`, string(b))

	var back Time
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Equal(tt))

	b, err = json.Marshal(Time{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestTime_Scan(t *testing.T) {
	var tt Time
	require.NoError(t, tt.Scan("2024-01-02 03:04:05"))
	assert.Equal(t, 2024, tt.Std().Year())

	require.NoError(t, tt.Scan(nil))
	assert.True(t, tt.IsZero())

	assert.Error(t, tt.Scan(42))
}
