package util

import (
	"reflect"
	"testing"
	"time"
)

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"30s", 30 * time.Second},
		{"2", 2 * time.Second},
		{"nonsense", time.Minute},
		{"", time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("LEECH_TEST_DURATION", tt.value)
			if got := GetEnvDuration("LEECH_TEST_DURATION", time.Minute); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("LEECH_TEST_LIST", " a, b,,c ")
	got := GetEnvList("LEECH_TEST_LIST")
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestGetEnvBoolAndInt(t *testing.T) {
	t.Setenv("LEECH_TEST_BOOL", "yes")
	if GetEnvBool("LEECH_TEST_BOOL", true) != true {
		t.Fatalf("unparseable bool should fall back to default")
	}
	t.Setenv("LEECH_TEST_INT", "12")
	if GetEnvInt("LEECH_TEST_INT", 3) != 12 {
		t.Fatalf("expected 12")
	}
}
