package ratelimit

import "testing"

func TestAllow_BurstThenThrottle(t *testing.T) {
	// 1 token/sec sustained with a burst of 3, so the 4th immediate call
	// must be throttled.
	l := New(1, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow("conn1") {
			t.Fatalf("call %d throttled within burst", i)
		}
	}
	if l.Allow("conn1") {
		t.Fatal("call beyond burst allowed")
	}
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l := New(1, 1)

	if !l.Allow("conn1") {
		t.Fatal("conn1 first call throttled")
	}
	if !l.Allow("conn2") {
		t.Fatal("conn2 throttled by conn1's bucket")
	}
	if l.Allow("conn1") {
		t.Fatal("conn1 second call allowed")
	}
}

func TestForget_ResetsBucket(t *testing.T) {
	l := New(1, 1)

	l.Allow("conn1")
	if l.Allow("conn1") {
		t.Fatal("bucket not exhausted")
	}

	l.Forget("conn1")
	if !l.Allow("conn1") {
		t.Fatal("fresh bucket after Forget was throttled")
	}
}
