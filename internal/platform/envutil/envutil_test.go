package envutil

import (
	"testing"
	"time"
)

func TestDurationParsesBothForms(t *testing.T) {
	t.Setenv("NB_SYNC_TEST_DURATION", "750ms")
	if got := Duration("NB_SYNC_TEST_DURATION", time.Second); got != 750*time.Millisecond {
		t.Fatalf("duration string: want=750ms got=%v", got)
	}
	t.Setenv("NB_SYNC_TEST_DURATION", "1500")
	if got := Duration("NB_SYNC_TEST_DURATION", time.Second); got != 1500*time.Millisecond {
		t.Fatalf("bare millis: want=1.5s got=%v", got)
	}
	t.Setenv("NB_SYNC_TEST_DURATION", "soon")
	if got := Duration("NB_SYNC_TEST_DURATION", time.Second); got != time.Second {
		t.Fatalf("invalid: want default got=%v", got)
	}
}

func TestBoolAndIntDefaults(t *testing.T) {
	t.Setenv("NB_SYNC_TEST_BOOL", "off")
	if Bool("NB_SYNC_TEST_BOOL", true) {
		t.Fatalf("off should parse as false")
	}
	if !Bool("NB_SYNC_TEST_MISSING", true) {
		t.Fatalf("missing should return default")
	}
	t.Setenv("NB_SYNC_TEST_INT", "x")
	if Int("NB_SYNC_TEST_INT", 7) != 7 {
		t.Fatalf("invalid int should return default")
	}
}
