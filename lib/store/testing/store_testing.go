package testing

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/ValentinKolb/rKV/lib/store"
)

// StoreFactory creates a new, empty store under test
type StoreFactory func(t *testing.T) store.IStore

// RunIStoreTests runs the test suite every store.IStore implementation has to pass.
func RunIStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory(t))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory(t))
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory(t))
		})

		t.Run("Exec", func(t *testing.T) {
			testExec(t, factory(t))
		})

		t.Run("ExecErrors", func(t *testing.T) {
			testExecErrors(t, factory(t))
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory(t))
		})

		t.Run("ConcurrentIncr", func(t *testing.T) {
			testConcurrentIncr(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func mustExec(t *testing.T, s store.IStore, args ...string) []byte {
	t.Helper()
	b := make([][]byte, len(args))
	for i, a := range args {
		b[i] = []byte(a)
	}
	reply, err := s.Exec(b...)
	if err != nil {
		t.Fatalf("Exec(%q) failed: %v", args, err)
	}
	return reply
}

func retCode(err error) store.RetCode {
	var se *store.Error
	if errors.As(err, &se) {
		return se.Code
	}
	return store.RetCSuccess
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, s store.IStore) {
	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	if err := s.Set(testKey, testValue1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, exists, err := s.Get(testKey)
	if err != nil || !exists {
		t.Errorf("Expected key %s to exist after Set (err: %v)", testKey, err)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	if err := s.Set(testKey, testValue2); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	result, _, _ = s.Get(testKey)
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	if _, exists, _ = s.Get("nonexistent-key"); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _, _ := s.Get(testKey)
	retrievedValue[0] = 'X'
	originalValue, _, _ := s.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}
}

func testDelete(t *testing.T, s store.IStore) {
	_ = s.Set("delete-key", []byte("value"))

	if err := s.Delete("delete-key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, exists, _ := s.Get("delete-key"); exists {
		t.Errorf("Key should not exist after Delete")
	}

	if err := s.Delete("nonexistent-key"); err != nil {
		t.Errorf("Delete of a missing key failed: %v", err)
	}
}

func testHas(t *testing.T, s store.IStore) {
	if has, _ := s.Has("has-key"); has {
		t.Errorf("Key should not exist before Set")
	}
	_ = s.Set("has-key", []byte("v"))
	if has, err := s.Has("has-key"); err != nil || !has {
		t.Errorf("Key should exist after Set (err: %v)", err)
	}
}

func testExec(t *testing.T, s store.IStore) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"PING"}, "PONG"},
		{[]string{"SET", "k", "v"}, "OK"},
		{[]string{"get", "k"}, "v"},
		{[]string{"APPEND", "k", "alue"}, "5"},
		{[]string{"STRLEN", "k"}, "5"},
		{[]string{"INCR", "counter"}, "1"},
		{[]string{"INCRBY", "counter", "41"}, "42"},
		{[]string{"DECR", "counter"}, "41"},
		{[]string{"SETNX", "k", "other"}, "0"},
		{[]string{"SETNX", "fresh", "1"}, "1"},
		{[]string{"MSET", "a", "1", "b", "2"}, "OK"},
		{[]string{"EXISTS", "a", "b", "missing"}, "2"},
		{[]string{"DEL", "a", "b", "missing"}, "2"},
		{[]string{"EXISTS", "a"}, "0"},
	}

	for _, tt := range tests {
		if got := mustExec(t, s, tt.args...); string(got) != tt.want {
			t.Errorf("Exec(%q) = %q, want %q", tt.args, got, tt.want)
		}
	}

	if got := mustExec(t, s, "GET", "missing"); got != nil {
		t.Errorf("GET of a missing key = %q, want nil", got)
	}
	if v, _, _ := s.Get("k"); string(v) != "value" {
		t.Errorf("Get after APPEND = %q, want %q", v, "value")
	}
}

func testExecErrors(t *testing.T, s store.IStore) {
	_ = s.Set("text", []byte("abc"))

	tests := []struct {
		args []string
		code store.RetCode
	}{
		{[]string{"NOPE"}, store.RetCUnsupportedOperation},
		{[]string{"SET", "k"}, store.RetCInvalidOperation},
		{[]string{"GET"}, store.RetCInvalidOperation},
		{[]string{"MSET", "a", "1", "b"}, store.RetCInvalidOperation},
		{[]string{"INCR", "text"}, store.RetCInvalidOperation},
		{[]string{"INCRBY", "n", "x"}, store.RetCInvalidOperation},
	}

	for _, tt := range tests {
		b := make([][]byte, len(tt.args))
		for i, a := range tt.args {
			b[i] = []byte(a)
		}
		_, err := s.Exec(b...)
		if err == nil {
			t.Errorf("Exec(%q) should fail", tt.args)
			continue
		}
		if code := retCode(err); code != tt.code {
			t.Errorf("Exec(%q) code = %s, want %s (err: %v)", tt.args, code, tt.code, err)
		}
	}

	if v, _, _ := s.Get("text"); string(v) != "abc" {
		t.Errorf("failed INCR changed the value to %q", v)
	}
	if has, _ := s.Has("n"); has {
		t.Errorf("failed INCRBY created the key")
	}
}

func testEdgeCases(t *testing.T, s store.IStore) {
	emptyKeyValue := []byte("value for empty key")
	_ = s.Set("", emptyKeyValue)
	if result, exists, _ := s.Get(""); !exists || !bytes.Equal(result, emptyKeyValue) {
		t.Errorf("Empty key mismatch: %q (exists: %v)", result, exists)
	}

	_ = s.Set("nil-value-key", nil)
	if result, exists, _ := s.Get("nil-value-key"); !exists || len(result) != 0 {
		t.Errorf("Nil value mismatch: %q (exists: %v)", result, exists)
	}

	binaryValue := make([]byte, 256)
	for i := range binaryValue {
		binaryValue[i] = byte(i)
	}
	_ = s.Set("binary\x00key", binaryValue)
	if result, _, _ := s.Get("binary\x00key"); !bytes.Equal(result, binaryValue) {
		t.Errorf("Binary value mismatch")
	}

	largeValue := bytes.Repeat([]byte{0xAB}, 256*1024)
	_ = s.Set("large-value-key", largeValue)
	if result, _, _ := s.Get("large-value-key"); !bytes.Equal(result, largeValue) {
		t.Errorf("Large value mismatch: got %d bytes", len(result))
	}
}

func testConcurrentIncr(t *testing.T, s store.IStore) {
	const (
		workers   = 8
		perWorker = 50
	)

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := s.Exec([]byte("INCR"), []byte("concurrent")); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("INCR failed: %v", err)
	}

	v, _, _ := s.Get("concurrent")
	if n, err := strconv.Atoi(string(v)); err != nil || n != workers*perWorker {
		t.Errorf("counter = %q, want %d", v, workers*perWorker)
	}
}

// --------------------------------------------------------------------------
// Benchmarks
// --------------------------------------------------------------------------

// RunIStoreBenchmarks runs the benchmark suite for a store.IStore implementation
func RunIStoreBenchmarks(b *testing.B, name string, factory func(b *testing.B) store.IStore) {
	b.Run(name, func(b *testing.B) {
		b.Run("Set", func(b *testing.B) {
			s := factory(b)
			value := []byte("benchmark-value")
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = s.Set(fmt.Sprintf("key-%d", i), value)
			}
		})

		b.Run("Get", func(b *testing.B) {
			s := factory(b)
			for i := 0; i < 1000; i++ {
				_ = s.Set(fmt.Sprintf("key-%d", i), []byte("benchmark-value"))
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _, _ = s.Get(fmt.Sprintf("key-%d", i%1000))
			}
		})

		b.Run("Incr", func(b *testing.B) {
			s := factory(b)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = s.Exec([]byte("INCR"), []byte("counter"))
			}
		})
	})
}
