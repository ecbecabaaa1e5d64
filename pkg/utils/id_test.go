package utils

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestGenerateRunID(t *testing.T) {
	id1 := GenerateRunID("greedy")
	id2 := GenerateRunID("greedy")

	if id1 == id2 {
		t.Fatalf("GenerateRunID should return unique ids")
	}
	if !strings.HasPrefix(id1, "greedy-") {
		t.Fatalf("expected kind prefix, got %s", id1)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id1, "greedy-")); err != nil {
		t.Fatalf("suffix is not a uuid: %v", err)
	}
	if !strings.HasPrefix(GenerateRunID(""), "run-") {
		t.Fatalf("expected run- prefix for empty kind")
	}
}

func TestIDConcurrency(t *testing.T) {
	const goroutines, perGoroutine = 50, 50

	ids := make(chan string, goroutines*perGoroutine)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				ids <- GenerateID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
